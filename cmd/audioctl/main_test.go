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

package main

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmonixlabs/audio-engine-go/internal/audio"
)

func TestParseFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		opts, err := parseFlags(nil)
		require.NoError(t, err)
		assert.False(t, opts.list)
		assert.Equal(t, 48000, opts.sampleRate)
		assert.Equal(t, 512, opts.bufferFrames)
		assert.Equal(t, 2, opts.channels)
		assert.Equal(t, 440.0, opts.freq)
		assert.Equal(t, 5*time.Second, opts.duration)
		assert.Empty(t, opts.natsURL)
	})

	t.Run("overrides", func(t *testing.T) {
		opts, err := parseFlags([]string{
			"-list", "-rate", "44100", "-buffer", "256",
			"-output", "USB Interface", "-freq", "1000",
			"-duration", "2s", "-nats", "nats://localhost:4222",
		})
		require.NoError(t, err)
		assert.True(t, opts.list)
		assert.Equal(t, 44100, opts.sampleRate)
		assert.Equal(t, 256, opts.bufferFrames)
		assert.Equal(t, "USB Interface", opts.outputDevice)
		assert.Equal(t, 1000.0, opts.freq)
		assert.Equal(t, 2*time.Second, opts.duration)
		assert.Equal(t, "nats://localhost:4222", opts.natsURL)
	})

	t.Run("invalid_flag", func(t *testing.T) {
		_, err := parseFlags([]string{"-rate", "fast"})
		require.Error(t, err)
	})
}

func TestBuildConfig(t *testing.T) {
	opts, err := parseFlags([]string{"-rate", "44100", "-buffer", "128", "-channels", "1", "-output", "Mock Output"})
	require.NoError(t, err)

	cfg := buildConfig(opts)
	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Equal(t, 128, cfg.BufferFrames)
	assert.Equal(t, 0, cfg.InputChannels, "tone playback needs no input")
	assert.Equal(t, 1, cfg.OutputChannels)
	assert.Equal(t, "Mock Output", cfg.OutputDevice)
	require.NoError(t, cfg.Validate())
}

func TestSineCallback(t *testing.T) {
	t.Run("amplitude_bounds", func(t *testing.T) {
		cb := sineCallback(440, 48000, 2, 0.5)
		output := make([]float32, 512*2)
		require.NoError(t, cb(nil, output, 512, 0))

		for i, s := range output {
			if s > 0.5 || s < -0.5 {
				t.Fatalf("sample %d out of range: %f", i, s)
			}
		}
	})

	t.Run("channels_carry_the_same_sample", func(t *testing.T) {
		cb := sineCallback(440, 48000, 2, 0.5)
		output := make([]float32, 64*2)
		require.NoError(t, cb(nil, output, 64, 0))

		for i := 0; i < 64; i++ {
			assert.Equal(t, output[i*2], output[i*2+1], "frame %d", i)
		}
	})

	t.Run("phase_is_continuous_across_buffers", func(t *testing.T) {
		// Render the same signal in one buffer and in two halves; a phase
		// reset between buffers would make the halves diverge.
		whole := sineCallback(997, 48000, 1, 1.0)
		split := sineCallback(997, 48000, 1, 1.0)

		full := make([]float32, 256)
		require.NoError(t, whole(nil, full, 256, 0))

		a := make([]float32, 128)
		b := make([]float32, 128)
		require.NoError(t, split(nil, a, 128, 0))
		require.NoError(t, split(nil, b, 128, 0))

		for i := 0; i < 128; i++ {
			assert.InDelta(t, full[i], a[i], 1e-6)
			assert.InDelta(t, full[128+i], b[i], 1e-6)
		}
	})

	t.Run("non_silent", func(t *testing.T) {
		cb := sineCallback(440, 48000, 1, 0.2)
		output := make([]float32, 512)
		require.NoError(t, cb(nil, output, 512, 0))

		var energy float64
		for _, s := range output {
			energy += float64(s) * float64(s)
		}
		assert.Greater(t, math.Sqrt(energy/512), 0.05)
	})
}

func TestFormatDevice(t *testing.T) {
	d := audio.Device{
		ID:   "10_0_abc",
		Name: "Mock Output",
		Capabilities: audio.Capabilities{
			MaxOutputChannels: 2,
			SampleRates:       []int{44100, 96000},
			DefaultOutput:     true,
		},
	}

	line := formatDevice(d)
	assert.Contains(t, line, "Mock Output")
	assert.Contains(t, line, "10_0_abc")
	assert.Contains(t, line, "44100-96000 Hz")
	assert.Contains(t, line, "[default out]")
	assert.NotContains(t, line, "[default in]")
}

func TestListDevices(t *testing.T) {
	host := audio.NewMockHost()
	require.NoError(t, host.Initialize())
	defer func() { _ = host.Terminate() }()

	var buf bytes.Buffer
	require.NoError(t, listDevices(audio.NewRegistry(host), &buf))

	out := buf.String()
	assert.Contains(t, out, "Mock Output")
	assert.Contains(t, out, "Mock Duplex")
	assert.Contains(t, out, "Mock Input")
	assert.Equal(t, 3, strings.Count(out, "\n"))
}

func TestRunPlaysTone(t *testing.T) {
	host := audio.NewMockHost()
	require.NoError(t, host.Initialize())
	defer func() { _ = host.Terminate() }()

	opts, err := parseFlags([]string{"-duration", "50ms"})
	require.NoError(t, err)

	registry := audio.NewRegistry(host)
	require.NoError(t, run(context.Background(), host, registry, opts, zerolog.Nop()))
}
