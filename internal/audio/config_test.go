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
	"strings"
	"testing"
)

func TestDefaultStreamConfig(t *testing.T) {
	cfg := DefaultStreamConfig()

	if cfg.SampleRate != 48000 {
		t.Errorf("Expected sample rate 48000, got %d", cfg.SampleRate)
	}
	if cfg.BufferFrames != 512 {
		t.Errorf("Expected 512 buffer frames, got %d", cfg.BufferFrames)
	}
	if cfg.InputChannels != 2 || cfg.OutputChannels != 2 {
		t.Errorf("Expected stereo duplex, got %d/%d", cfg.InputChannels, cfg.OutputChannels)
	}
	if cfg.Format != FormatFloat32 {
		t.Errorf("Expected float32 format, got %s", cfg.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config must validate: %v", err)
	}
}

func TestStreamConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*StreamConfig)
		wantErr bool
		fragment string
	}{
		{
			name:   "default is valid",
			mutate: func(c *StreamConfig) {},
		},
		{
			name:     "zero sample rate",
			mutate:   func(c *StreamConfig) { c.SampleRate = 0 },
			wantErr:  true,
			fragment: "sample rate",
		},
		{
			name:     "negative sample rate",
			mutate:   func(c *StreamConfig) { c.SampleRate = -48000 },
			wantErr:  true,
			fragment: "sample rate",
		},
		{
			name:     "zero buffer",
			mutate:   func(c *StreamConfig) { c.BufferFrames = 0 },
			wantErr:  true,
			fragment: "buffer size",
		},
		{
			name:     "negative channels",
			mutate:   func(c *StreamConfig) { c.InputChannels = -1 },
			wantErr:  true,
			fragment: "negative",
		},
		{
			name: "no channels at all",
			mutate: func(c *StreamConfig) {
				c.InputChannels = 0
				c.OutputChannels = 0
			},
			wantErr:  true,
			fragment: "at least one",
		},
		{
			name: "output only is valid",
			mutate: func(c *StreamConfig) {
				c.InputChannels = 0
			},
		},
		{
			name: "input only is valid",
			mutate: func(c *StreamConfig) {
				c.OutputChannels = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultStreamConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected a validation error")
				}
				if CodeOf(err) != CodeInvalidConfiguration {
					t.Errorf("Expected InvalidConfiguration, got %s", CodeOf(err))
				}
				if !strings.Contains(err.Error(), tt.fragment) {
					t.Errorf("Error %q does not mention %q", err.Error(), tt.fragment)
				}
			} else if err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestStreamConfigString(t *testing.T) {
	cfg := DefaultStreamConfig()
	s := cfg.String()
	if !strings.Contains(s, "<default>") {
		t.Errorf("Empty device selections should render as <default>: %s", s)
	}
	if !strings.Contains(s, "rate=48000") {
		t.Errorf("Missing sample rate in %s", s)
	}

	cfg.OutputDevice = "USB Interface"
	if !strings.Contains(cfg.String(), "USB Interface") {
		t.Errorf("Named device missing from %s", cfg.String())
	}
}

func TestEnumStrings(t *testing.T) {
	formats := map[SampleFormat]string{
		FormatFloat32:     "float32",
		FormatInt16:       "int16",
		FormatInt24:       "int24",
		FormatInt32:       "int32",
		SampleFormat(99): "format(99)",
	}
	for f, want := range formats {
		if f.String() != want {
			t.Errorf("Format %d: expected %q, got %q", int(f), want, f.String())
		}
	}

	strategies := map[BufferStrategy]string{
		StrategyFixed:      "fixed",
		StrategyAdaptive:   "adaptive",
		StrategyLowLatency: "low-latency",
		StrategyStable:     "stable",
	}
	for s, want := range strategies {
		if s.String() != want {
			t.Errorf("Strategy %d: expected %q, got %q", int(s), want, s.String())
		}
	}

	backends := map[BackendKind]string{
		BackendAuto:      "auto",
		BackendALSA:      "alsa",
		BackendCoreAudio: "coreaudio",
		BackendWASAPI:    "wasapi",
		BackendPortAudio: "portaudio",
		BackendMock:      "mock",
	}
	for b, want := range backends {
		if b.String() != want {
			t.Errorf("Backend %d: expected %q, got %q", int(b), want, b.String())
		}
	}

	states := map[State]string{
		StateUninitialized: "uninitialized",
		StateInitialized:   "initialized",
		StateRunning:       "running",
		StatePaused:        "paused",
		StateStopped:       "stopped",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("State %d: expected %q, got %q", int32(s), want, s.String())
		}
	}
}
