/*
 * This file is part of the Harmonix audio engine (https://github.com/harmonixlabs/audio-engine-go).
 * Copyright (C) 2025 Harmonix Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package audio

// StatusFlags encodes the timing anomalies a driver reports per callback.
type StatusFlags uint32

const (
	FlagInputOverflow StatusFlags = 1 << iota
	FlagInputUnderflow
	FlagOutputOverflow
	FlagOutputUnderflow
)

// DriverCallback is invoked by a Host on its audio thread for every buffer.
// Buffers are interleaved float32 sample frames; input is nil for
// output-only streams and output is nil for input-only streams. A non-zero
// return value requests that the driver halt the stream; after the driver
// honors it no further invocations occur.
//
// Implementations run under real-time constraints: no allocation, no
// blocking, no locks shared with slow control-path work.
type DriverCallback func(input, output []float32, frames int, flags StatusFlags) int32

// HostDeviceInfo is the raw per-device record a Host reports during
// enumeration. The registry turns these into Device descriptors and owns all
// normalization; hosts may report rates unsorted and with duplicates.
type HostDeviceInfo struct {
	Index             int
	Name              string
	Vendor            string
	MaxInputChannels  int
	MaxOutputChannels int

	SampleRates         []int
	PreferredSampleRate int

	DefaultInputLatencyMs  float64
	DefaultOutputLatencyMs float64
}

// NoDevice marks an absent device selection in OpenParams.
const NoDevice = -1

// OpenParams carries everything a Host needs to open a physical stream.
// BufferFrames is advisory: the driver may adjust it, and the engine adopts
// the value reported by HostStream.BufferFrames afterwards.
type OpenParams struct {
	InputDevice  int // host device index, NoDevice for none
	OutputDevice int

	InputChannels  int
	OutputChannels int

	SampleRate   int
	BufferFrames int
	Format       SampleFormat

	LowLatency bool
	Exclusive  bool
}

// HostStream is one opened physical stream. Close must not return until any
// in-flight callback invocation has completed; the engine relies on that to
// guarantee no callback fires after Stop returns.
type HostStream interface {
	Start() error
	Stop() error
	Close() error

	// BufferFrames is the buffer size actually in effect, which may differ
	// from the requested OpenParams.BufferFrames.
	BufferFrames() int
}

// Host is the boundary to a native audio driver. Everything above it (the
// registry, the engine) is driver-agnostic; everything below it is glue.
type Host interface {
	Kind() BackendKind

	Initialize() error
	Terminate() error

	Devices() ([]HostDeviceInfo, error)
	DefaultInputIndex() (int, error)
	DefaultOutputIndex() (int, error)

	OpenStream(params OpenParams, cb DriverCallback) (HostStream, error)
}
