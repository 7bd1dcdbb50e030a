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
	"math"
	"strings"
	"testing"
)

func TestDeviceID(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := deviceID(BackendALSA, 3, "USB Interface")
		b := deviceID(BackendALSA, 3, "USB Interface")
		if a != b {
			t.Errorf("Same inputs produced different IDs: %s vs %s", a, b)
		}
	})

	t.Run("distinguishes_inputs", func(t *testing.T) {
		base := deviceID(BackendALSA, 3, "USB Interface")
		if deviceID(BackendJACK, 3, "USB Interface") == base {
			t.Error("Backend kind must contribute to the ID")
		}
		if deviceID(BackendALSA, 4, "USB Interface") == base {
			t.Error("Driver index must contribute to the ID")
		}
		if deviceID(BackendALSA, 3, "Other Interface") == base {
			t.Error("Device name must contribute to the ID")
		}
	})

	t.Run("shape", func(t *testing.T) {
		id := deviceID(BackendMock, 0, "Mock Output")
		parts := strings.Split(id, "_")
		if len(parts) != 3 {
			t.Fatalf("Expected kind_index_hash, got %s", id)
		}
	})
}

func TestDeviceEqual(t *testing.T) {
	a := Device{ID: "10_0_abc", Name: "Speakers"}
	b := Device{ID: "10_0_abc", Name: "Renamed Speakers", Index: 7}
	c := Device{ID: "10_1_abc", Name: "Speakers"}

	if !a.Equal(b) {
		t.Error("Identity is the ID alone; structural fields must not matter")
	}
	if a.Equal(c) {
		t.Error("Different IDs are different devices")
	}
}

func TestDeviceCapabilityQueries(t *testing.T) {
	d := Device{
		Name: "Studio Interface",
		Capabilities: Capabilities{
			SampleRates: []int{44100, 48000, 96000},
			BufferSizes: []int{128, 256, 512},
			Formats:     []SampleFormat{FormatFloat32, FormatInt24},
		},
	}

	if !d.SupportsSampleRate(48000) || d.SupportsSampleRate(22050) {
		t.Error("Sample rate support must match the capability list exactly")
	}
	if !d.SupportsBufferSize(256) || d.SupportsBufferSize(1024) {
		t.Error("Buffer size support must match the capability list exactly")
	}
	if !d.SupportsFormat(FormatInt24) || d.SupportsFormat(FormatInt16) {
		t.Error("Format support must match the capability list exactly")
	}
}

func TestDeviceDefaultLatency(t *testing.T) {
	epsilon := 0.000001

	t.Run("preferred_rate", func(t *testing.T) {
		d := Device{Capabilities: Capabilities{
			SampleRates:    []int{44100, 48000},
			SupportsOutput: true,
		}}
		want := 512.0 / 48000.0 * 1000.0
		if math.Abs(d.DefaultOutputLatencyMs()-want) > epsilon {
			t.Errorf("Expected %.4f ms, got %.4f ms", want, d.DefaultOutputLatencyMs())
		}
	})

	t.Run("highest_rate_fallback", func(t *testing.T) {
		d := Device{Capabilities: Capabilities{
			SampleRates:   []int{8000, 16000},
			SupportsInput: true,
		}}
		want := 512.0 / 16000.0 * 1000.0
		if math.Abs(d.DefaultInputLatencyMs()-want) > epsilon {
			t.Errorf("Expected %.4f ms, got %.4f ms", want, d.DefaultInputLatencyMs())
		}
	})

	t.Run("unsupported_direction", func(t *testing.T) {
		d := Device{Capabilities: Capabilities{SampleRates: []int{48000}}}
		if d.DefaultInputLatencyMs() != 10.0 {
			t.Errorf("Expected the 10 ms fallback, got %.4f", d.DefaultInputLatencyMs())
		}
	})
}

func TestErrorTaxonomy(t *testing.T) {
	t.Run("code_of", func(t *testing.T) {
		if CodeOf(nil) != CodeNone {
			t.Error("nil carries no code")
		}

		wrapped := WrapError(CodeBackendStartFailed, NewError(CodeDeviceNotFound, "gone"), "start failed")
		if CodeOf(wrapped) != CodeBackendStartFailed {
			t.Errorf("Outermost code wins, got %s", CodeOf(wrapped))
		}
	})

	t.Run("message_format", func(t *testing.T) {
		err := NewError(CodeSampleRateUnsupported, "rate %d", 192000)
		if !strings.Contains(err.Error(), "SampleRateUnsupported") {
			t.Errorf("Code name missing from %q", err.Error())
		}
		if !strings.Contains(err.Error(), "192000") {
			t.Errorf("Formatted message missing from %q", err.Error())
		}
	})

	t.Run("unwrap", func(t *testing.T) {
		inner := NewError(CodeDeviceNotFound, "gone")
		outer := WrapError(CodeBackendStartFailed, inner, "start failed")
		if outer.Unwrap() != inner {
			t.Error("Unwrap must expose the wrapped error")
		}
	})
}
