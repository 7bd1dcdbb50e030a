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
	"sort"
	"sync"
)

// Registry enumerates, caches and resolves devices across one or more hosts.
// It is an explicit instance, not a process-wide singleton: construct one per
// engine (or share one deliberately) so independent engines and tests can
// coexist in a process.
//
// The cache fills lazily on first use and is invalidated only by Refresh,
// never by time. Descriptors are immutable; a Refresh produces a fresh
// snapshot with fresh descriptors.
type Registry struct {
	mu      sync.Mutex
	hosts   []Host
	devices []Device
	loaded  bool
}

// NewRegistry creates a registry over the given hosts. Hosts must be
// initialized before the first enumeration.
func NewRegistry(hosts ...Host) *Registry {
	return &Registry{hosts: hosts}
}

// Enumerate returns the cached device snapshot, querying the hosts on first
// use. Pass BackendAuto to see every backend. Hosts that fail to enumerate
// are skipped; the error is reported only when no host could be queried at
// all.
func (r *Registry) Enumerate(filter BackendKind) ([]Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLocked(); err != nil {
		return nil, err
	}

	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		if filter == BackendAuto || d.Backend == filter {
			out = append(out, d)
		}
	}
	return out, nil
}

// DefaultInput resolves the default input device, reporting absence rather
// than an error when there is none.
func (r *Registry) DefaultInput(filter BackendKind) (Device, bool) {
	return r.find(func(d Device) bool {
		return d.Capabilities.DefaultInput && (filter == BackendAuto || d.Backend == filter)
	})
}

// DefaultOutput resolves the default output device, reporting absence rather
// than an error when there is none.
func (r *Registry) DefaultOutput(filter BackendKind) (Device, bool) {
	return r.find(func(d Device) bool {
		return d.Capabilities.DefaultOutput && (filter == BackendAuto || d.Backend == filter)
	})
}

// ByID resolves a device by its stable identifier.
func (r *Registry) ByID(id string) (Device, bool) {
	return r.find(func(d Device) bool { return d.ID == id })
}

// ByName resolves a device by its human-readable name. When several backends
// expose the same name, the first enumerated wins.
func (r *Registry) ByName(name string) (Device, bool) {
	return r.find(func(d Device) bool { return d.Name == name })
}

// Refresh drops the cached snapshot. The next lookup re-queries the hosts,
// e.g. after hardware changes.
func (r *Registry) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = nil
	r.loaded = false
}

func (r *Registry) find(match func(Device) bool) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLocked(); err != nil {
		return Device{}, false
	}
	for _, d := range r.devices {
		if match(d) {
			return d, true
		}
	}
	return Device{}, false
}

// byIndex resolves a cached descriptor by backend kind and driver index. Used
// by the engine to report the devices actually bound at start time.
func (r *Registry) byIndex(kind BackendKind, index int) (Device, bool) {
	return r.find(func(d Device) bool { return d.Backend == kind && d.Index == index })
}

func (r *Registry) ensureLocked() error {
	if r.loaded {
		return nil
	}

	var (
		devices  []Device
		seen     = make(map[string]struct{})
		firstErr error
		queried  int
	)

	for _, h := range r.hosts {
		infos, err := h.Devices()
		if err != nil {
			if firstErr == nil {
				firstErr = WrapError(CodeDeviceUnavailable, err,
					"enumerating %s devices", h.Kind())
			}
			continue
		}
		queried++

		defaultIn, _ := h.DefaultInputIndex()
		defaultOut, _ := h.DefaultOutputIndex()

		for _, info := range infos {
			d := buildDevice(h.Kind(), info, defaultIn, defaultOut)
			if _, dup := seen[d.ID]; dup {
				continue
			}
			seen[d.ID] = struct{}{}
			devices = append(devices, d)
		}
	}

	if queried == 0 && firstErr != nil {
		return firstErr
	}

	r.devices = devices
	r.loaded = true
	return nil
}

// commonBufferSizes are assumed for drivers that do not report buffer size
// capabilities; actual support is established when a stream opens.
var commonBufferSizes = []int{64, 128, 256, 512, 1024, 2048, 4096}

func buildDevice(kind BackendKind, info HostDeviceInfo, defaultIn, defaultOut int) Device {
	rates := normalizeRates(info.SampleRates)

	caps := Capabilities{
		SampleRates:             rates,
		BufferSizes:             append([]int(nil), commonBufferSizes...),
		Formats:                 []SampleFormat{FormatFloat32, FormatInt16, FormatInt24, FormatInt32},
		MaxInputChannels:        info.MaxInputChannels,
		MaxOutputChannels:       info.MaxOutputChannels,
		SupportsInput:           info.MaxInputChannels > 0,
		SupportsOutput:          info.MaxOutputChannels > 0,
		SupportsDuplex:          info.MaxInputChannels > 0 && info.MaxOutputChannels > 0,
		MinLatencyMs:            minLatencyMs(info),
		MaxLatencyMs:            100.0,
		ReportedInputLatencyMs:  info.DefaultInputLatencyMs,
		ReportedOutputLatencyMs: info.DefaultOutputLatencyMs,
		DefaultInput:            info.Index == defaultIn && info.MaxInputChannels > 0,
		DefaultOutput:           info.Index == defaultOut && info.MaxOutputChannels > 0,
	}

	return Device{
		ID:           deviceID(kind, info.Index, info.Name),
		Name:         info.Name,
		Vendor:       info.Vendor,
		Backend:      kind,
		Index:        info.Index,
		Capabilities: caps,
	}
}

// normalizeRates sorts ascending and removes duplicates. This is the
// registry's responsibility, not the driver's.
func normalizeRates(rates []int) []int {
	out := make([]int, 0, len(rates))
	for _, r := range rates {
		if r > 0 {
			out = append(out, r)
		}
	}
	sort.Ints(out)

	n := 0
	for i, r := range out {
		if i == 0 || r != out[n-1] {
			out[n] = r
			n++
		}
	}
	return out[:n]
}

func minLatencyMs(info HostDeviceInfo) float64 {
	min := info.DefaultInputLatencyMs
	if info.DefaultOutputLatencyMs > 0 && (min <= 0 || info.DefaultOutputLatencyMs < min) {
		min = info.DefaultOutputLatencyMs
	}
	if min <= 0 {
		min = 1.0
	}
	return min
}

// describeSelection names a device selection for error messages.
func describeSelection(name string, direction string) string {
	if name == "" {
		return fmt.Sprintf("default %s device", direction)
	}
	return fmt.Sprintf("%s device %q", direction, name)
}
