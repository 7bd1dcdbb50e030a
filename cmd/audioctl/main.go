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

// audioctl lists audio devices and plays a test tone through the engine,
// optionally publishing telemetry over NATS.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmonixlabs/audio-engine-go/internal/audio"
	"github.com/harmonixlabs/audio-engine-go/internal/logging"
	"github.com/harmonixlabs/audio-engine-go/internal/telemetry"
)

type options struct {
	list     bool
	duration time.Duration

	sampleRate   int
	bufferFrames int
	channels     int
	outputDevice string

	freq      float64
	amplitude float64

	natsURL  string
	engineID string
	level    string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("audioctl", flag.ContinueOnError)

	fs.BoolVar(&opts.list, "list", false, "list audio devices and exit")
	fs.DurationVar(&opts.duration, "duration", 5*time.Second, "how long to play (0 = until interrupted)")
	fs.IntVar(&opts.sampleRate, "rate", 48000, "sample rate in Hz")
	fs.IntVar(&opts.bufferFrames, "buffer", 512, "buffer size in frames")
	fs.IntVar(&opts.channels, "channels", 2, "output channel count")
	fs.StringVar(&opts.outputDevice, "output", "", "output device name (default device when empty)")
	fs.Float64Var(&opts.freq, "freq", 440, "test tone frequency in Hz")
	fs.Float64Var(&opts.amplitude, "amplitude", 0.2, "test tone amplitude, 0..1")
	fs.StringVar(&opts.natsURL, "nats", "", "NATS URL for telemetry (disabled when empty)")
	fs.StringVar(&opts.engineID, "id", "audioctl", "engine identifier for telemetry subjects")
	fs.StringVar(&opts.level, "level", "info", "log level (trace, debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

func buildConfig(opts options) audio.StreamConfig {
	cfg := audio.DefaultStreamConfig()
	cfg.InputChannels = 0
	cfg.OutputChannels = opts.channels
	cfg.SampleRate = opts.sampleRate
	cfg.BufferFrames = opts.bufferFrames
	cfg.OutputDevice = opts.outputDevice
	return cfg
}

// sineCallback renders a continuous sine tone across buffers. Phase carries
// over between invocations so buffer boundaries stay click-free.
func sineCallback(freq float64, sampleRate, channels int, amplitude float64) audio.Callback {
	var phase float64
	step := 2 * math.Pi * freq / float64(sampleRate)

	return func(_, output []float32, frames int, _ float64) error {
		for i := 0; i < frames; i++ {
			s := float32(amplitude * math.Sin(phase))
			for c := 0; c < channels; c++ {
				output[i*channels+c] = s
			}
			phase += step
			if phase >= 2*math.Pi {
				phase -= 2 * math.Pi
			}
		}
		return nil
	}
}

func formatDevice(d audio.Device) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-30s in:%d out:%d", d.ID, d.Name,
		d.Capabilities.MaxInputChannels, d.Capabilities.MaxOutputChannels)
	if len(d.Capabilities.SampleRates) > 0 {
		rates := d.Capabilities.SampleRates
		fmt.Fprintf(&b, "  %d-%d Hz", rates[0], rates[len(rates)-1])
	}
	if d.Capabilities.DefaultInput {
		b.WriteString("  [default in]")
	}
	if d.Capabilities.DefaultOutput {
		b.WriteString("  [default out]")
	}
	return b.String()
}

func listDevices(registry *audio.Registry, w io.Writer) error {
	devices, err := registry.Enumerate(audio.BackendAuto)
	if err != nil {
		return err
	}
	for _, d := range devices {
		fmt.Fprintln(w, formatDevice(d))
	}
	return nil
}

func printReport(w io.Writer, e *audio.Engine) {
	info := e.MeasureLatency()
	fmt.Fprintf(w, "stream time:  %.2f s\n", e.StreamTime())
	fmt.Fprintf(w, "callbacks:    %d\n", e.CallbackCount())
	fmt.Fprintf(w, "latency:      %.2f ms theoretical, %.2f ms measured\n",
		info.TheoreticalMs, info.MeasuredMs)
	fmt.Fprintf(w, "jitter:       %.3f ms\n", info.JitterMs)
	fmt.Fprintf(w, "cpu usage:    %.1f %%\n", info.CPUUsage)
	fmt.Fprintf(w, "xruns:        %d\n", info.Xruns)
}

func run(ctx context.Context, host audio.Host, registry *audio.Registry, opts options, log zerolog.Logger) error {
	engine := audio.NewEngine(host, registry, log)
	defer engine.Close()

	if err := engine.Initialize(buildConfig(opts)); err != nil {
		return err
	}

	cb := sineCallback(opts.freq, opts.sampleRate, opts.channels, opts.amplitude)

	var tap *telemetry.Tap
	if opts.natsURL != "" {
		conn, err := telemetry.Connect(opts.natsURL, log)
		if err != nil {
			return err
		}
		defer conn.Close()

		pub := telemetry.NewPublisher(conn, opts.engineID, log)
		go pub.Run(ctx, engine, time.Second)

		tap = telemetry.NewTap(pub, opts.channels, opts.sampleRate, opts.bufferFrames, 16)
		defer tap.Close()
		cb = tap.Wrap(cb)
	}

	if err := engine.Start(cb); err != nil {
		return err
	}

	log.Info().
		Float64("freq", opts.freq).
		Dur("duration", opts.duration).
		Msg("playing test tone")

	if opts.duration > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(opts.duration):
		}
	} else {
		<-ctx.Done()
	}

	if err := engine.Stop(); err != nil {
		return err
	}
	printReport(os.Stdout, engine)
	return nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	log := logging.New(opts.level)

	host := audio.NewPortAudioHost()
	if err := host.Initialize(); err != nil {
		log.Fatal().Err(err).Msg("audio host initialization failed")
	}
	defer func() { _ = host.Terminate() }()

	registry := audio.NewRegistry(host)

	if opts.list {
		if err := listDevices(registry, os.Stdout); err != nil {
			log.Fatal().Err(err).Msg("device enumeration failed")
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, host, registry, opts, log); err != nil {
		log.Fatal().Err(err).Msg("playback failed")
	}
}
