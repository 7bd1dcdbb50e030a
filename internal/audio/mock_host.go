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
)

// MockHost implements Host without hardware dependencies. It drives the
// callback bridge from a goroutine at (optionally real) buffer cadence and
// supports error injection, xrun injection and driver-side buffer
// adjustment, so the engine's state machine and bridge are testable end to
// end.
type MockHost struct {
	mu          sync.Mutex
	initialized bool
	devices     []HostDeviceInfo
	defaultIn   int
	defaultOut  int

	initErr      error
	terminateErr error
	enumerateErr error
	openErr      error
	openErrOnce  error
	startErr     error
	stopErr      error
	closeErr     error

	realTime     bool
	adjustFrames func(int) int
	fillInput    func([]float32)

	openCount  int
	lastParams OpenParams
	streams    []*MockStream

	pendingFlags atomic.Uint32
}

// NewMockHost creates a mock with three devices: a default output, a default
// duplex device and an input-only device. Rates are reported deliberately
// unsorted and with duplicates; normalization is the registry's job.
func NewMockHost() *MockHost {
	return &MockHost{
		devices: []HostDeviceInfo{
			{
				Index:                  0,
				Name:                   "Mock Output",
				Vendor:                 "Harmonix",
				MaxOutputChannels:      2,
				SampleRates:            []int{48000, 44100, 48000, 96000},
				PreferredSampleRate:    48000,
				DefaultOutputLatencyMs: 10,
			},
			{
				Index:                  1,
				Name:                   "Mock Duplex",
				Vendor:                 "Harmonix",
				MaxInputChannels:       2,
				MaxOutputChannels:      2,
				SampleRates:            []int{96000, 44100, 22050, 48000, 44100},
				PreferredSampleRate:    48000,
				DefaultInputLatencyMs:  10,
				DefaultOutputLatencyMs: 10,
			},
			{
				Index:                 2,
				Name:                  "Mock Input",
				Vendor:                "Harmonix",
				MaxInputChannels:      1,
				SampleRates:           []int{8000, 16000, 44100, 48000},
				PreferredSampleRate:   16000,
				DefaultInputLatencyMs: 12,
			},
		},
		defaultIn:  1,
		defaultOut: 0,
	}
}

func (m *MockHost) Kind() BackendKind { return BackendMock }

func (m *MockHost) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initErr != nil {
		return m.initErr
	}
	m.initialized = true
	return nil
}

func (m *MockHost) Terminate() error {
	m.mu.Lock()
	streams := append([]*MockStream(nil), m.streams...)
	err := m.terminateErr
	m.initialized = false
	m.mu.Unlock()

	// Stop streams without holding the host lock.
	for _, s := range streams {
		_ = s.Stop()
		_ = s.Close()
	}
	return err
}

func (m *MockHost) Devices() ([]HostDeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enumerateErr != nil {
		return nil, m.enumerateErr
	}
	return append([]HostDeviceInfo(nil), m.devices...), nil
}

func (m *MockHost) DefaultInputIndex() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultIn, nil
}

func (m *MockHost) DefaultOutputIndex() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultOut, nil
}

func (m *MockHost) OpenStream(params OpenParams, cb DriverCallback) (HostStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("mock host not initialized")
	}
	if m.openErr != nil {
		return nil, m.openErr
	}
	if m.openErrOnce != nil {
		err := m.openErrOnce
		m.openErrOnce = nil
		return nil, err
	}
	if cb == nil {
		return nil, fmt.Errorf("mock host requires a callback")
	}
	if params.InputChannels > 0 && !m.hasIndexLocked(params.InputDevice) {
		return nil, fmt.Errorf("mock host has no device %d", params.InputDevice)
	}
	if params.OutputChannels > 0 && !m.hasIndexLocked(params.OutputDevice) {
		return nil, fmt.Errorf("mock host has no device %d", params.OutputDevice)
	}

	frames := params.BufferFrames
	if m.adjustFrames != nil {
		frames = m.adjustFrames(frames)
	}

	s := &MockStream{
		host:         m,
		cb:           cb,
		sampleRate:   params.SampleRate,
		bufferFrames: frames,
		realTime:     m.realTime,
		startErr:     m.startErr,
		stopErr:      m.stopErr,
	}
	if params.InputChannels > 0 {
		s.input = make([]float32, frames*params.InputChannels)
	}
	if params.OutputChannels > 0 {
		s.output = make([]float32, frames*params.OutputChannels)
	}

	m.openCount++
	m.lastParams = params
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *MockHost) hasIndexLocked(index int) bool {
	for _, d := range m.devices {
		if d.Index == index {
			return true
		}
	}
	return false
}

// ===== Test configuration =====

// SetDevices replaces the device list and default indices.
func (m *MockHost) SetDevices(devices []HostDeviceInfo, defaultIn, defaultOut int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = append([]HostDeviceInfo(nil), devices...)
	m.defaultIn, m.defaultOut = defaultIn, defaultOut
}

// SetInitError makes Initialize fail.
func (m *MockHost) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

// SetEnumerateError makes Devices fail.
func (m *MockHost) SetEnumerateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enumerateErr = err
}

// SetOpenError makes OpenStream fail.
func (m *MockHost) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// SetOpenErrorOnce makes only the next OpenStream fail. Later opens succeed,
// which exercises reopen-and-rollback paths.
func (m *MockHost) SetOpenErrorOnce(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErrOnce = err
}

// SetStartError makes Start fail on streams opened afterwards.
func (m *MockHost) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// SetCloseError makes Close fail on every stream until cleared with nil.
// Unlike the start/stop errors it is consulted at close time, so a retry
// after clearing succeeds.
func (m *MockHost) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

// SetRealTime paces callbacks at true buffer cadence instead of the fast
// test cadence.
func (m *MockHost) SetRealTime(realTime bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.realTime = realTime
}

// SetAdjustBufferFrames installs a driver-side buffer adjustment, exercising
// the engine's adoption of in/out buffer sizes.
func (m *MockHost) SetAdjustBufferFrames(adjust func(int) int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustFrames = adjust
}

// SetInputGenerator fills the input buffer before each callback.
func (m *MockHost) SetInputGenerator(fill func([]float32)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fillInput = fill
}

// InjectFlags ORs status flags into the next callback invocation.
func (m *MockHost) InjectFlags(flags StatusFlags) {
	m.pendingFlags.Or(uint32(flags))
}

// InjectXrun signals an output underflow on the next callback.
func (m *MockHost) InjectXrun() {
	m.InjectFlags(FlagOutputUnderflow)
}

// OpenCount reports how many streams have been opened.
func (m *MockHost) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCount
}

// LastOpenParams reports the parameters of the most recent OpenStream.
func (m *MockHost) LastOpenParams() OpenParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastParams
}

// Streams returns every stream this host has opened, in open order.
func (m *MockHost) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockStream(nil), m.streams...)
}

// MockStream implements HostStream. The callback loop runs in a goroutine;
// Stop and Close wait for it to exit, matching the device-close contract
// that no invocation is in flight after they return.
type MockStream struct {
	host         *MockHost
	cb           DriverCallback
	sampleRate   int
	bufferFrames int
	realTime     bool
	input        []float32
	output       []float32

	startErr error
	stopErr  error

	mu      sync.Mutex
	running bool
	closed  bool
	stopCh  chan struct{}
	done    chan struct{}

	callbacks atomic.Int64
}

func (s *MockStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("mock stream closed")
	}
	if s.startErr != nil {
		return s.startErr
	}
	if s.running {
		return nil
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stopCh, s.done)
	return nil
}

func (s *MockStream) Stop() error {
	s.mu.Lock()
	if s.stopErr != nil {
		s.mu.Unlock()
		return s.stopErr
	}
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done // no callback in flight once Stop returns
	return nil
}

func (s *MockStream) Close() error {
	s.host.mu.Lock()
	closeErr := s.host.closeErr
	s.host.mu.Unlock()
	if closeErr != nil {
		return closeErr
	}

	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has completed on this stream.
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MockStream) BufferFrames() int {
	return s.bufferFrames
}

// Callbacks reports how many times the driver callback has been invoked on
// this stream.
func (s *MockStream) Callbacks() int64 {
	return s.callbacks.Load()
}

func (s *MockStream) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := time.Millisecond
	if s.realTime && s.sampleRate > 0 {
		interval = time.Duration(float64(s.bufferFrames) / float64(s.sampleRate) * float64(time.Second))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			flags := StatusFlags(s.host.pendingFlags.Swap(0))

			s.host.mu.Lock()
			fill := s.host.fillInput
			s.host.mu.Unlock()
			if fill != nil && s.input != nil {
				fill(s.input)
			}

			s.callbacks.Add(1)
			if s.cb(s.input, s.output, s.bufferFrames, flags) != 0 {
				// Driver halt requested; stop delivering.
				s.mu.Lock()
				s.running = false
				s.mu.Unlock()
				return
			}
		}
	}
}
