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

import (
	"fmt"
	"hash/fnv"
)

// Capabilities describes what one device can do. SampleRates is always
// strictly ascending with no duplicates once a Device has been produced by
// the registry.
type Capabilities struct {
	SampleRates []int
	BufferSizes []int
	Formats     []SampleFormat

	MaxInputChannels  int
	MaxOutputChannels int

	SupportsInput  bool
	SupportsOutput bool
	SupportsDuplex bool

	MinLatencyMs float64
	MaxLatencyMs float64

	// Per-side latencies as reported by the driver, zero when the driver
	// reports none.
	ReportedInputLatencyMs  float64
	ReportedOutputLatencyMs float64

	DefaultInput  bool
	DefaultOutput bool
}

// Device is an immutable descriptor of one physical or logical endpoint.
// Identity is the ID alone: two descriptors from the same enumeration
// snapshot are the same device exactly when their IDs match, regardless of
// the structural fields. Descriptors are discarded wholesale on the next
// registry refresh.
type Device struct {
	ID           string
	Name         string
	Vendor       string
	Backend      BackendKind
	Index        int
	Capabilities Capabilities
}

// deviceID derives the stable identifier for one enumeration snapshot:
// backend kind, driver index and a hash of the device name.
func deviceID(backend BackendKind, index int, name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	return fmt.Sprintf("%d_%d_%x", int(backend), index, h.Sum32())
}

// Equal reports device identity, defined by ID only.
func (d Device) Equal(other Device) bool {
	return d.ID == other.ID
}

func (d Device) SupportsSampleRate(rate int) bool {
	for _, r := range d.Capabilities.SampleRates {
		if r == rate {
			return true
		}
	}
	return false
}

func (d Device) SupportsBufferSize(size int) bool {
	for _, s := range d.Capabilities.BufferSizes {
		if s == size {
			return true
		}
	}
	return false
}

func (d Device) SupportsFormat(format SampleFormat) bool {
	for _, f := range d.Capabilities.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// DefaultInputLatencyMs is the driver-reported input latency, falling back
// to a 512-frame estimate at the device's preferred rate when the driver
// reports none.
func (d Device) DefaultInputLatencyMs() float64 {
	if d.Capabilities.ReportedInputLatencyMs > 0 {
		return d.Capabilities.ReportedInputLatencyMs
	}
	return defaultLatencyMs(d.Capabilities.SupportsInput, d.preferredRate())
}

// DefaultOutputLatencyMs is the driver-reported output latency, falling back
// to a 512-frame estimate at the device's preferred rate when the driver
// reports none.
func (d Device) DefaultOutputLatencyMs() float64 {
	if d.Capabilities.ReportedOutputLatencyMs > 0 {
		return d.Capabilities.ReportedOutputLatencyMs
	}
	return defaultLatencyMs(d.Capabilities.SupportsOutput, d.preferredRate())
}

func (d Device) preferredRate() int {
	if d.SupportsSampleRate(48000) {
		return 48000
	}
	if len(d.Capabilities.SampleRates) > 0 {
		return d.Capabilities.SampleRates[len(d.Capabilities.SampleRates)-1]
	}
	return 0
}

func defaultLatencyMs(supported bool, rate int) float64 {
	if !supported || rate <= 0 {
		return 10.0
	}
	return 512.0 / float64(rate) * 1000.0
}

func (d Device) String() string {
	return fmt.Sprintf("Device{%s, id=%s, backend=%s, in=%d, out=%d, defaultIn=%t, defaultOut=%t}",
		d.Name, d.ID, d.Backend,
		d.Capabilities.MaxInputChannels, d.Capabilities.MaxOutputChannels,
		d.Capabilities.DefaultInput, d.Capabilities.DefaultOutput)
}
