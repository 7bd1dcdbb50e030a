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

import "fmt"

// SampleFormat identifies the sample encoding of a stream.
type SampleFormat int

const (
	FormatFloat32 SampleFormat = iota // 32-bit float (engine native)
	FormatInt16                       // 16-bit integer (CD quality)
	FormatInt24                       // 24-bit integer (pro audio)
	FormatInt32                       // 32-bit integer
)

func (f SampleFormat) String() string {
	switch f {
	case FormatFloat32:
		return "float32"
	case FormatInt16:
		return "int16"
	case FormatInt24:
		return "int24"
	case FormatInt32:
		return "int32"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// BufferStrategy expresses how aggressively the driver should size its
// internal buffering.
type BufferStrategy int

const (
	StrategyFixed      BufferStrategy = iota // exactly the requested size
	StrategyAdaptive                         // let the driver adapt
	StrategyLowLatency                       // minimum possible latency
	StrategyStable                           // larger buffers, maximum stability
)

func (s BufferStrategy) String() string {
	switch s {
	case StrategyFixed:
		return "fixed"
	case StrategyAdaptive:
		return "adaptive"
	case StrategyLowLatency:
		return "low-latency"
	case StrategyStable:
		return "stable"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// BackendKind identifies the native driver family behind a Host.
type BackendKind int

const (
	BackendAuto BackendKind = iota
	BackendASIO
	BackendWASAPI
	BackendDirectSound
	BackendCoreAudio
	BackendJACK
	BackendALSA
	BackendPulse
	BackendOSS
	BackendPortAudio // portable wrapper, the production default
	BackendMock      // in-process fake for tests and development
)

func (k BackendKind) String() string {
	switch k {
	case BackendAuto:
		return "auto"
	case BackendASIO:
		return "asio"
	case BackendWASAPI:
		return "wasapi"
	case BackendDirectSound:
		return "directsound"
	case BackendCoreAudio:
		return "coreaudio"
	case BackendJACK:
		return "jack"
	case BackendALSA:
		return "alsa"
	case BackendPulse:
		return "pulse"
	case BackendOSS:
		return "oss"
	case BackendPortAudio:
		return "portaudio"
	case BackendMock:
		return "mock"
	default:
		return fmt.Sprintf("backend(%d)", int(k))
	}
}

// StreamConfig is the validated parameter set for a requested stream. Callers
// mutate it freely before Engine.Initialize; the engine works on a copy
// afterwards, so later changes only take effect through a new Initialize or
// the reconfiguration methods.
type StreamConfig struct {
	// Device selection by name. Empty means the backend default.
	InputDevice  string
	OutputDevice string

	SampleRate     int // Hz
	BufferFrames   int // frames per buffer
	InputChannels  int
	OutputChannels int

	Format         SampleFormat
	BufferStrategy BufferStrategy

	AllowSampleRateChange bool
	AllowBufferSizeChange bool
	ExclusiveMode         bool

	PreferredBackend BackendKind
}

// DefaultStreamConfig returns a stereo duplex configuration at 48 kHz with a
// 512-frame buffer.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		SampleRate:     48000,
		BufferFrames:   512,
		InputChannels:  2,
		OutputChannels: 2,
		Format:         FormatFloat32,
		BufferStrategy: StrategyStable,
	}
}

// Validate reports whether the configuration can open a stream. It must pass
// before Engine.Initialize accepts the config.
func (c StreamConfig) Validate() error {
	if c.SampleRate <= 0 {
		return NewError(CodeInvalidConfiguration, "sample rate must be positive, got %d", c.SampleRate)
	}
	if c.BufferFrames <= 0 {
		return NewError(CodeInvalidConfiguration, "buffer size must be positive, got %d", c.BufferFrames)
	}
	if c.InputChannels < 0 || c.OutputChannels < 0 {
		return NewError(CodeInvalidConfiguration, "channel counts must not be negative")
	}
	if c.InputChannels == 0 && c.OutputChannels == 0 {
		return NewError(CodeInvalidConfiguration, "at least one input or output channel is required")
	}
	return nil
}

func (c StreamConfig) String() string {
	in := c.InputDevice
	if in == "" {
		in = "<default>"
	}
	out := c.OutputDevice
	if out == "" {
		out = "<default>"
	}
	return fmt.Sprintf("StreamConfig{in=%s out=%s rate=%d buffer=%d ch=%d/%d fmt=%s strategy=%s}",
		in, out, c.SampleRate, c.BufferFrames, c.InputChannels, c.OutputChannels,
		c.Format, c.BufferStrategy)
}
