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
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

// candidateSampleRates are probed per device. PortAudio does not report a
// rate list, so the host assumes the common set; actual support is
// established when the stream opens.
var candidateSampleRates = []int{8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000}

// PortAudioHost implements Host over the PortAudio library. It is the
// production driver boundary.
type PortAudioHost struct {
	mu          sync.Mutex
	initialized bool
	kind        BackendKind
}

func NewPortAudioHost() *PortAudioHost {
	return &PortAudioHost{kind: BackendPortAudio}
}

// Kind reports the native backend PortAudio selected, once initialized.
func (h *PortAudioHost) Kind() BackendKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kind
}

func (h *PortAudioHost) Initialize() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	if api, err := portaudio.DefaultHostApi(); err == nil {
		h.kind = kindFromHostAPI(api.Type)
	}
	h.initialized = true
	return nil
}

func (h *PortAudioHost) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized {
		return nil
	}
	err := portaudio.Terminate()
	h.initialized = false
	return err
}

func (h *PortAudioHost) Devices() ([]HostDeviceInfo, error) {
	if err := h.requireInit(); err != nil {
		return nil, err
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	infos := make([]HostDeviceInfo, 0, len(devices))
	for i, d := range devices {
		rates := make([]int, 0, len(candidateSampleRates)+1)
		rates = append(rates, candidateSampleRates...)
		if r := int(d.DefaultSampleRate); r > 0 {
			rates = append(rates, r)
		}

		vendor := ""
		if d.HostApi != nil {
			vendor = d.HostApi.Name
		}

		infos = append(infos, HostDeviceInfo{
			Index:                  i,
			Name:                   d.Name,
			Vendor:                 vendor,
			MaxInputChannels:       d.MaxInputChannels,
			MaxOutputChannels:      d.MaxOutputChannels,
			SampleRates:            rates,
			PreferredSampleRate:    int(d.DefaultSampleRate),
			DefaultInputLatencyMs:  float64(d.DefaultLowInputLatency) / float64(time.Millisecond),
			DefaultOutputLatencyMs: float64(d.DefaultLowOutputLatency) / float64(time.Millisecond),
		})
	}
	return infos, nil
}

func (h *PortAudioHost) DefaultInputIndex() (int, error) {
	return h.defaultIndex(portaudio.DefaultInputDevice)
}

func (h *PortAudioHost) DefaultOutputIndex() (int, error) {
	return h.defaultIndex(portaudio.DefaultOutputDevice)
}

func (h *PortAudioHost) defaultIndex(lookup func() (*portaudio.DeviceInfo, error)) (int, error) {
	if err := h.requireInit(); err != nil {
		return NoDevice, err
	}

	def, err := lookup()
	if err != nil {
		return NoDevice, err
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return NoDevice, err
	}
	// PortAudio hands out cached DeviceInfo pointers, so identity comparison
	// resolves the index.
	for i, d := range devices {
		if d == def {
			return i, nil
		}
	}
	return NoDevice, fmt.Errorf("default device not present in enumeration")
}

func (h *PortAudioHost) OpenStream(params OpenParams, cb DriverCallback) (HostStream, error) {
	if err := h.requireInit(); err != nil {
		return nil, err
	}
	if cb == nil {
		return nil, fmt.Errorf("no driver callback")
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	p := portaudio.StreamParameters{
		SampleRate:      float64(params.SampleRate),
		FramesPerBuffer: params.BufferFrames,
	}
	// Exclusive hardware access is not expressible through portable
	// PortAudio; the flag is accepted and ignored here.
	if params.InputChannels > 0 {
		dev, err := deviceAt(devices, params.InputDevice)
		if err != nil {
			return nil, err
		}
		p.Input = portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: params.InputChannels,
			Latency:  pickLatency(dev.DefaultLowInputLatency, dev.DefaultHighInputLatency, params.LowLatency),
		}
	}
	if params.OutputChannels > 0 {
		dev, err := deviceAt(devices, params.OutputDevice)
		if err != nil {
			return nil, err
		}
		p.Output = portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: params.OutputChannels,
			Latency:  pickLatency(dev.DefaultLowOutputLatency, dev.DefaultHighOutputLatency, params.LowLatency),
		}
	}

	s := &paStream{
		bufferFrames: params.BufferFrames,
		haltCh:       make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
	}

	// The Go binding's callbacks have no return value to request a halt
	// with, so a watcher goroutine aborts the stream when the bridge asks
	// for one.
	var stream *portaudio.Stream
	switch {
	case params.InputChannels > 0 && params.OutputChannels > 0:
		stream, err = portaudio.OpenStream(p, func(in, out []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			s.dispatch(cb, in, out, len(out)/params.OutputChannels, flags)
		})
	case params.OutputChannels > 0:
		stream, err = portaudio.OpenStream(p, func(out []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			s.dispatch(cb, nil, out, len(out)/params.OutputChannels, flags)
		})
	case params.InputChannels > 0:
		stream, err = portaudio.OpenStream(p, func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			s.dispatch(cb, in, nil, len(in)/params.InputChannels, flags)
		})
	default:
		return nil, fmt.Errorf("stream needs input or output channels")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	s.stream = stream
	go s.watchHalt()
	return s, nil
}

func (h *PortAudioHost) requireInit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.initialized {
		return fmt.Errorf("PortAudio host not initialized")
	}
	return nil
}

// AvailableBackends lists the native backend kinds PortAudio exposes on this
// machine. The host must be initialized first.
func AvailableBackends() []BackendKind {
	apis, err := portaudio.HostApis()
	if err != nil {
		return nil
	}
	kinds := make([]BackendKind, 0, len(apis))
	for _, api := range apis {
		kinds = append(kinds, kindFromHostAPI(api.Type))
	}
	return kinds
}

func kindFromHostAPI(t portaudio.HostApiType) BackendKind {
	switch t {
	case portaudio.ASIO:
		return BackendASIO
	case portaudio.WASAPI:
		return BackendWASAPI
	case portaudio.DirectSound:
		return BackendDirectSound
	case portaudio.CoreAudio:
		return BackendCoreAudio
	case portaudio.JACK:
		return BackendJACK
	case portaudio.ALSA:
		return BackendALSA
	case portaudio.OSS:
		return BackendOSS
	default:
		return BackendPortAudio
	}
}

func deviceAt(devices []*portaudio.DeviceInfo, index int) (*portaudio.DeviceInfo, error) {
	if index < 0 || index >= len(devices) {
		return nil, fmt.Errorf("device index %d out of range", index)
	}
	return devices[index], nil
}

func pickLatency(low, high time.Duration, lowLatency bool) time.Duration {
	if lowLatency {
		return low
	}
	return high
}

// paStream adapts *portaudio.Stream to HostStream.
type paStream struct {
	stream       *portaudio.Stream
	bufferFrames int

	halted atomic.Bool
	haltCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
}

func (s *paStream) dispatch(cb DriverCallback, in, out []float32, frames int, flags portaudio.StreamCallbackFlags) {
	if s.halted.Load() {
		zeroFill(out)
		return
	}
	if cb(in, out, frames, convertFlags(flags)) != 0 {
		s.halted.Store(true)
		select {
		case s.haltCh <- struct{}{}:
		default:
		}
		zeroFill(out)
	}
}

func (s *paStream) watchHalt() {
	select {
	case <-s.haltCh:
		// Abort from outside the callback; PortAudio forbids stopping a
		// stream from its own audio thread.
		_ = s.stream.Abort()
	case <-s.doneCh:
	}
}

func (s *paStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	if err := s.stream.Start(); err != nil {
		return err
	}
	s.started = true
	return nil
}

func (s *paStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.started {
		return nil
	}
	// portaudio.Stream.Stop blocks until pending buffers finish, so no
	// callback is in flight once it returns.
	if err := s.stream.Stop(); err != nil {
		return err
	}
	s.started = false
	return nil
}

func (s *paStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.doneCh)
	return s.stream.Close()
}

func (s *paStream) BufferFrames() int {
	return s.bufferFrames
}

func convertFlags(flags portaudio.StreamCallbackFlags) StatusFlags {
	var out StatusFlags
	if flags&portaudio.InputOverflow != 0 {
		out |= FlagInputOverflow
	}
	if flags&portaudio.InputUnderflow != 0 {
		out |= FlagInputUnderflow
	}
	if flags&portaudio.OutputOverflow != 0 {
		out |= FlagOutputOverflow
	}
	if flags&portaudio.OutputUnderflow != 0 {
		out |= FlagOutputUnderflow
	}
	return out
}
