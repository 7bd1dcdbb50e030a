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
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// State is the lifecycle position of an engine's stream.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StatePaused
	// StateStopped is entered only when an I/O or callback failure halts a
	// running stream; the error is recorded and retry is the caller's call.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Callback processes one buffer on the audio thread. Buffers are interleaved
// float32 frames; input is nil for output-only streams and output is nil for
// input-only streams. streamTime is seconds of audio delivered since
// Initialize. Returning an error halts the stream permanently.
//
// The callback runs under real-time constraints: it must not allocate,
// block, or touch locks shared with control-path work.
type Callback func(input, output []float32, frames int, streamTime float64) error

// LatencyInfo is one reading of the engine's performance counters.
type LatencyInfo struct {
	TheoreticalMs float64 // BufferFrames * 1000 / SampleRate, exact
	MeasuredMs    float64
	JitterMs      float64
	CPUUsage      float64 // percent of the buffer time budget
	Xruns         int64
}

// bridgeParams is the audio-thread view of the open stream. It is swapped
// atomically as a unit so the callback bridge never sees a half-updated
// configuration.
type bridgeParams struct {
	sampleRate     float64
	inputChannels  int
	outputChannels int
}

// Engine owns the stream state machine, the real-time callback bridge, live
// reconfiguration and the performance counters for one stream over one Host.
//
// Two execution contexts touch an Engine: the caller's control thread
// (lifecycle and reconfiguration methods, serialized by an internal mutex)
// and the driver's audio thread (the callback bridge). The only state shared
// between them is held in atomics; the control mutex is never taken on the
// audio path.
type Engine struct {
	host     Host
	registry *Registry
	log      zerolog.Logger

	mu        sync.Mutex // control path serialization only
	config    StreamConfig
	stream    HostStream
	inputIdx  int // host index bound at Start, NoDevice when unused
	outputIdx int

	state    atomic.Int32
	callback atomic.Pointer[Callback]
	bridge   atomic.Pointer[bridgeParams]
	lastErr  atomic.Pointer[Error]

	xruns          atomic.Int64
	callbackCount  atomic.Int64
	lastCallbackNs atomic.Int64
	cpuUsageBits   atomic.Uint64 // float64 bits
	streamTimeBits atomic.Uint64 // float64 bits
	jitterMsBits   atomic.Uint64 // float64 bits, EWMA of |interval - budget|
}

// NewEngine creates an engine over host, resolving devices through registry.
// The host must already be initialized; the engine does not own its
// lifecycle.
func NewEngine(host Host, registry *Registry, log zerolog.Logger) *Engine {
	e := &Engine{
		host:      host,
		registry:  registry,
		log:       log.With().Str("component", "engine").Str("backend", host.Kind().String()).Logger(),
		inputIdx:  NoDevice,
		outputIdx: NoDevice,
	}
	e.state.Store(int32(StateUninitialized))
	return e
}

// Initialize validates and adopts a configuration, stopping any active
// stream first; when the active stream cannot be released the new
// configuration is not adopted. On success the prior error is cleared and
// all performance counters, including the xrun count and stream time, reset
// to zero.
func (e *Engine) Initialize(cfg StreamConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		var ae *Error
		if errors.As(err, &ae) {
			return e.failLocked(ae)
		}
		return e.failLocked(WrapError(CodeInvalidConfiguration, err, "invalid stream configuration"))
	}

	if err := e.stopLocked(); err != nil {
		// The old stream could not be released; adopting a new
		// configuration on top of it would orphan it.
		return err
	}

	e.config = cfg
	e.resetCountersLocked()
	e.lastErr.Store(nil)
	e.state.Store(int32(StateInitialized))
	e.log.Debug().Stringer("config", cfg).Msg("engine initialized")
	return nil
}

// Start resolves the configured devices, opens the physical stream and
// begins delivering buffers to cb. Starting an already-running stream is an
// error; on any failure the engine returns to Initialized, never half-open.
func (e *Engine) Start(cb Callback) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch State(e.state.Load()) {
	case StateUninitialized:
		return e.failLocked(NewError(CodeStreamClosed, "stream not initialized"))
	case StateRunning, StatePaused:
		return e.failLocked(NewError(CodeBackendStartFailed, "already running"))
	case StateStopped:
		// A halted stream still holds its driver resources; close it
		// before opening a new one.
		if err := e.stopLocked(); err != nil {
			return e.failLocked(WrapError(CodeBackendStartFailed, err, "failed to release halted stream"))
		}
	}
	if cb == nil {
		return e.failLocked(NewError(CodeBackendStartFailed, "no callback provided"))
	}

	if err := e.resolveDevicesLocked(); err != nil {
		return e.failLocked(WrapError(CodeBackendStartFailed, err, "device resolution failed"))
	}

	e.callback.Store(&cb)
	if err := e.openLocked(); err != nil {
		e.callback.Store(nil)
		return e.failLocked(WrapError(CodeBackendStartFailed, err, "failed to open stream"))
	}

	e.lastCallbackNs.Store(time.Now().UnixNano())
	if err := e.stream.Start(); err != nil {
		_ = e.stream.Close()
		e.stream = nil
		e.callback.Store(nil)
		e.bridge.Store(nil)
		return e.failLocked(WrapError(CodeBackendStartFailed, err, "failed to start stream"))
	}

	e.state.Store(int32(StateRunning))
	e.log.Info().
		Int("sample_rate", e.config.SampleRate).
		Int("buffer_frames", e.config.BufferFrames).
		Int("input_device", e.inputIdx).
		Int("output_device", e.outputIdx).
		Msg("stream started")
	return nil
}

// Stop halts audio delivery and closes the stream. No callback invocation
// occurs after Stop returns; the device-close contract guarantees any
// in-flight invocation has completed. Stopping a non-running stream is a
// no-op, never an error.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked()
}

// Pause suspends physical audio delivery without closing the stream. Stream
// time is preserved; no callback fires while paused. Pausing a non-running
// or already-paused stream is a no-op.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if State(e.state.Load()) != StateRunning {
		return nil
	}
	if err := e.stream.Stop(); err != nil {
		return e.failLocked(WrapError(CodeBackendStopFailed, err, "failed to pause stream"))
	}
	e.state.Store(int32(StatePaused))
	e.log.Debug().Msg("stream paused")
	return nil
}

// Resume restarts delivery after Pause. Stream time continues monotonically
// from where it left off. Resuming a non-paused stream is a no-op.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if State(e.state.Load()) != StatePaused {
		return nil
	}
	e.lastCallbackNs.Store(time.Now().UnixNano())
	if err := e.stream.Start(); err != nil {
		return e.failLocked(WrapError(CodeBackendStartFailed, err, "failed to resume stream"))
	}
	e.state.Store(int32(StateRunning))
	e.log.Debug().Msg("stream resumed")
	return nil
}

// Close tears the engine down. A still-active stream is stopped first; stop
// failures are recorded in the error slot and swallowed. Close never fails.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.stopLocked()
	e.state.Store(int32(StateUninitialized))
}

// ===== Dynamic reconfiguration =====
//
// Each method is a no-op returning false when the stream is not running or
// the corresponding policy flag is disabled. The protocol is: remember the
// pause state, pause, close, mutate the configuration, reopen, restore. On
// failure the mutation is reverted and the old stream reopened; the engine
// always ends in a known state.

// ChangeSampleRate reopens the stream at a new sample rate. Requires
// AllowSampleRateChange.
func (e *Engine) ChangeSampleRate(rate int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.activeLocked() || !e.config.AllowSampleRateChange {
		return false
	}
	if rate <= 0 {
		e.lastErr.Store(errUnsupportedSampleRate(rate, "any device"))
		return false
	}
	for _, d := range e.boundDevicesLocked() {
		if len(d.Capabilities.SampleRates) > 0 && !d.SupportsSampleRate(rate) {
			e.lastErr.Store(errUnsupportedSampleRate(rate, d.Name))
			return false
		}
	}

	old := e.config.SampleRate
	ok := e.reconfigureLocked(func() func() {
		e.config.SampleRate = rate
		return func() { e.config.SampleRate = old }
	})
	if ok {
		e.log.Info().Int("sample_rate", rate).Msg("sample rate changed")
	}
	return ok
}

// ChangeBufferSize reopens the stream with a new buffer size. Requires
// AllowBufferSizeChange. The driver may adjust the size; the adopted value
// is visible through ActualBufferSize.
func (e *Engine) ChangeBufferSize(frames int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.activeLocked() || !e.config.AllowBufferSizeChange {
		return false
	}
	if frames <= 0 || frames > 1<<16 {
		e.lastErr.Store(errUnsupportedBufferSize(frames, 1, 1<<16))
		return false
	}

	old := e.config.BufferFrames
	ok := e.reconfigureLocked(func() func() {
		e.config.BufferFrames = frames
		return func() { e.config.BufferFrames = old }
	})
	if ok {
		e.log.Info().Int("buffer_frames", e.config.BufferFrames).Msg("buffer size changed")
	}
	return ok
}

// SwitchInputDevice rebinds the stream's input side to the device with the
// given registry ID, reopening the stream.
func (e *Engine) SwitchInputDevice(id string) bool {
	return e.switchDevice(id, true)
}

// SwitchOutputDevice rebinds the stream's output side to the device with the
// given registry ID, reopening the stream.
func (e *Engine) SwitchOutputDevice(id string) bool {
	return e.switchDevice(id, false)
}

func (e *Engine) switchDevice(id string, isInput bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.activeLocked() {
		return false
	}
	channels := e.config.OutputChannels
	if isInput {
		channels = e.config.InputChannels
	}
	if channels == 0 {
		e.lastErr.Store(NewError(CodeInvalidConfiguration,
			"stream has no %s side to switch", direction(isInput)))
		return false
	}

	d, found := e.registry.ByID(id)
	if !found || d.Backend != e.host.Kind() {
		e.lastErr.Store(errDeviceNotFound(id))
		return false
	}
	if err := checkDirection(d, isInput, channels); err != nil {
		e.lastErr.Store(err)
		return false
	}

	var ok bool
	if isInput {
		oldIdx, oldName := e.inputIdx, e.config.InputDevice
		ok = e.reconfigureLocked(func() func() {
			e.inputIdx, e.config.InputDevice = d.Index, d.Name
			return func() { e.inputIdx, e.config.InputDevice = oldIdx, oldName }
		})
	} else {
		oldIdx, oldName := e.outputIdx, e.config.OutputDevice
		ok = e.reconfigureLocked(func() func() {
			e.outputIdx, e.config.OutputDevice = d.Index, d.Name
			return func() { e.outputIdx, e.config.OutputDevice = oldIdx, oldName }
		})
	}
	if ok {
		e.log.Info().Str("device", d.Name).Str("side", direction(isInput)).Msg("device switched")
	}
	return ok
}

// reconfigureLocked runs the pause/close/mutate/reopen/restore protocol.
// mutate applies the configuration change and returns its revert. Returns
// true only when the stream is reopened with the new parameters and the
// prior run state restored.
func (e *Engine) reconfigureLocked(mutate func() func()) bool {
	wasPaused := State(e.state.Load()) == StatePaused

	if !wasPaused {
		if err := e.stream.Stop(); err != nil {
			e.lastErr.Store(WrapError(CodeBackendStopFailed, err, "failed to pause for reconfiguration"))
			return false
		}
		e.state.Store(int32(StatePaused))
	}
	if err := e.stream.Close(); err != nil {
		// Handle retained; a later stop retries the close.
		e.state.Store(int32(StateStopped))
		e.lastErr.Store(WrapError(CodeBackendStopFailed, err, "failed to close stream for reconfiguration"))
		return false
	}
	e.stream = nil

	revert := mutate()
	if err := e.openLocked(); err != nil {
		e.lastErr.Store(WrapError(CodePlatformSpecific, err, "failed to reopen with new parameters"))
		revert()
		if err := e.openLocked(); err != nil {
			// Rollback failed too; the stream is gone. Leave a terminal,
			// well-defined state rather than something silently un-openable.
			e.stream = nil
			e.state.Store(int32(StateStopped))
			e.log.Error().Err(err).Msg("rollback reopen failed, stream stopped")
			return false
		}
		e.restoreRunStateLocked(wasPaused)
		return false
	}

	return e.restoreRunStateLocked(wasPaused)
}

func (e *Engine) restoreRunStateLocked(wasPaused bool) bool {
	if wasPaused {
		e.state.Store(int32(StatePaused))
		return true
	}
	e.lastCallbackNs.Store(time.Now().UnixNano())
	if err := e.stream.Start(); err != nil {
		// Reopened but not restarted: a known, resumable state.
		e.state.Store(int32(StatePaused))
		e.lastErr.Store(WrapError(CodeBackendStartFailed, err, "failed to restart after reconfiguration"))
		return false
	}
	e.state.Store(int32(StateRunning))
	return true
}

// ===== Performance monitoring =====

// MeasureLatency reads the current latency and performance figures.
// TheoreticalMs is exact and deterministic for the active configuration;
// MeasuredMs and JitterMs derive from the callback interval EWMA and are
// never negative.
func (e *Engine) MeasureLatency() LatencyInfo {
	e.mu.Lock()
	rate, frames := e.config.SampleRate, e.config.BufferFrames
	e.mu.Unlock()

	var theoretical float64
	if rate > 0 {
		theoretical = float64(frames) * 1000.0 / float64(rate)
	}
	jitter := math.Float64frombits(e.jitterMsBits.Load())
	return LatencyInfo{
		TheoreticalMs: theoretical,
		MeasuredMs:    theoretical + jitter,
		JitterMs:      jitter,
		CPUUsage:      math.Float64frombits(e.cpuUsageBits.Load()),
		Xruns:         e.xruns.Load(),
	}
}

// CPUUsage is the latest callback-time-to-budget ratio in percent, clamped
// to 100 when a deadline was missed.
func (e *Engine) CPUUsage() float64 {
	return math.Float64frombits(e.cpuUsageBits.Load())
}

// XrunCount is the cumulative buffer over/underrun count. It never decreases
// within a stream's lifetime and resets only on Initialize.
func (e *Engine) XrunCount() int64 {
	return e.xruns.Load()
}

// CallbackCount is the number of callback bridge invocations since
// Initialize.
func (e *Engine) CallbackCount() int64 {
	return e.callbackCount.Load()
}

// StreamTime is the seconds of audio delivered since Initialize. It advances
// monotonically per buffer and survives pause/resume.
func (e *Engine) StreamTime() float64 {
	return math.Float64frombits(e.streamTimeBits.Load())
}

// ===== Stream information =====

func (e *Engine) State() State {
	return State(e.state.Load())
}

// IsRunning reports whether a stream is open and live, including while
// paused.
func (e *Engine) IsRunning() bool {
	s := State(e.state.Load())
	return s == StateRunning || s == StatePaused
}

func (e *Engine) IsPaused() bool {
	return State(e.state.Load()) == StatePaused
}

// CurrentConfig returns a copy of the active configuration, including any
// driver-adjusted buffer size.
func (e *Engine) CurrentConfig() StreamConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

func (e *Engine) ActualSampleRate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.SampleRate
}

func (e *Engine) ActualBufferSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.BufferFrames
}

// InputLatencyMs is the input-side latency of the open stream: the buffer
// latency plus the bound input device's reported latency. With no input
// device bound it is the buffer latency alone.
func (e *Engine) InputLatencyMs() float64 {
	return e.sideLatencyMs(true)
}

// OutputLatencyMs is the output-side latency of the open stream: the buffer
// latency plus the bound output device's reported latency. With no output
// device bound it is the buffer latency alone.
func (e *Engine) OutputLatencyMs() float64 {
	return e.sideLatencyMs(false)
}

func (e *Engine) sideLatencyMs(isInput bool) float64 {
	buffer := e.MeasureLatency().TheoreticalMs

	e.mu.Lock()
	idx := e.outputIdx
	if isInput {
		idx = e.inputIdx
	}
	e.mu.Unlock()

	if idx == NoDevice {
		return buffer
	}
	d, found := e.registry.byIndex(e.host.Kind(), idx)
	if !found {
		return buffer
	}
	if isInput {
		return buffer + d.Capabilities.ReportedInputLatencyMs
	}
	return buffer + d.Capabilities.ReportedOutputLatencyMs
}

func (e *Engine) BackendKind() BackendKind {
	return e.host.Kind()
}

// CurrentInputDevice reports the input device bound when the stream started
// or last switched.
func (e *Engine) CurrentInputDevice() (Device, bool) {
	e.mu.Lock()
	idx := e.inputIdx
	active := e.activeLocked()
	e.mu.Unlock()
	if !active || idx == NoDevice {
		return Device{}, false
	}
	return e.registry.byIndex(e.host.Kind(), idx)
}

// CurrentOutputDevice reports the output device bound when the stream
// started or last switched.
func (e *Engine) CurrentOutputDevice() (Device, bool) {
	e.mu.Lock()
	idx := e.outputIdx
	active := e.activeLocked()
	e.mu.Unlock()
	if !active || idx == NoDevice {
		return Device{}, false
	}
	return e.registry.byIndex(e.host.Kind(), idx)
}

// ===== Error channel =====

// LastError returns the most recent failure, or nil. The slot is overwritten
// by any failing operation and cleared explicitly or by a successful
// Initialize.
func (e *Engine) LastError() *Error {
	return e.lastErr.Load()
}

func (e *Engine) ClearError() {
	e.lastErr.Store(nil)
}

// ===== Callback bridge (audio thread) =====

// driverCallback is the bridge the Host invokes for every buffer. It updates
// only wait-free atomics; it must never take the control mutex or block.
func (e *Engine) driverCallback(input, output []float32, frames int, flags StatusFlags) int32 {
	if flags&FlagInputOverflow != 0 {
		e.xruns.Add(1)
	}
	if flags&FlagOutputUnderflow != 0 {
		e.xruns.Add(1)
	}

	bp := e.bridge.Load()
	if bp == nil || frames <= 0 || bp.sampleRate <= 0 {
		zeroFill(output)
		return 0
	}

	now := time.Now().UnixNano()
	prev := e.lastCallbackNs.Swap(now)
	budget := float64(frames) / bp.sampleRate
	if prev > 0 {
		elapsed := float64(now-prev) / 1e9
		usage := elapsed / budget * 100.0
		if usage > 100.0 {
			usage = 100.0 // deadline missed
		}
		if usage < 0 {
			usage = 0
		}
		e.cpuUsageBits.Store(math.Float64bits(usage))

		deviationMs := math.Abs(elapsed-budget) * 1000.0
		prevJitter := math.Float64frombits(e.jitterMsBits.Load())
		e.jitterMsBits.Store(math.Float64bits(prevJitter*0.9 + deviationMs*0.1))
	}

	streamTime := math.Float64frombits(e.streamTimeBits.Load()) + budget
	e.streamTimeBits.Store(math.Float64bits(streamTime))
	e.callbackCount.Add(1)

	cb := e.callback.Load()
	if cb == nil {
		// Silence, never stale samples.
		zeroFill(output)
		return 0
	}

	if err := invokeCallback(*cb, input, output, frames, streamTime); err != nil {
		// The stream is over either way; allocating the error here is fine.
		e.lastErr.Store(WrapError(CodeCallbackError, err, "audio callback failed"))
		e.state.Store(int32(StateStopped))
		return 1 // ask the driver to halt
	}
	return 0
}

// invokeCallback runs the user callback, converting a panic into an error so
// nothing propagates through driver internals.
func invokeCallback(cb Callback, input, output []float32, frames int, streamTime float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panic: %v", r)
		}
	}()
	return cb(input, output, frames, streamTime)
}

func zeroFill(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}

// ===== Internals (control thread, e.mu held) =====

func (e *Engine) failLocked(err *Error) error {
	e.lastErr.Store(err)
	return err
}

// activeLocked reports whether a physical stream is open (running or
// paused).
func (e *Engine) activeLocked() bool {
	s := State(e.state.Load())
	return s == StateRunning || s == StatePaused
}

func (e *Engine) stopLocked() error {
	st := State(e.state.Load())
	if e.stream == nil {
		if st == StateStopped {
			e.state.Store(int32(StateInitialized))
		}
		return nil
	}

	var firstErr *Error
	if st == StateRunning {
		if err := e.stream.Stop(); err != nil {
			firstErr = WrapError(CodeBackendStopFailed, err, "failed to stop stream")
		}
	}
	if err := e.stream.Close(); err != nil {
		if firstErr == nil {
			firstErr = WrapError(CodeBackendStopFailed, err, "failed to close stream")
		}
		// The driver still owns the stream. Keep the handle so a later stop
		// can retry the close instead of orphaning a live stream.
		e.callback.Store(nil)
		e.bridge.Store(nil)
		e.state.Store(int32(StateStopped))
		e.lastErr.Store(firstErr)
		e.log.Warn().Err(firstErr).Msg("stream close failed, handle retained")
		return firstErr
	}

	e.stream = nil
	e.callback.Store(nil)
	e.bridge.Store(nil)
	e.inputIdx, e.outputIdx = NoDevice, NoDevice
	e.state.Store(int32(StateInitialized))
	e.log.Debug().Msg("stream stopped")

	if firstErr != nil {
		e.lastErr.Store(firstErr)
		return firstErr
	}
	return nil
}

func (e *Engine) resetCountersLocked() {
	e.xruns.Store(0)
	e.callbackCount.Store(0)
	e.lastCallbackNs.Store(0)
	e.cpuUsageBits.Store(0)
	e.streamTimeBits.Store(0)
	e.jitterMsBits.Store(0)
}

// openLocked opens the physical stream for the current configuration and
// bound device indices, adopting the driver-adjusted buffer size.
func (e *Engine) openLocked() error {
	params := OpenParams{
		InputDevice:    e.inputIdx,
		OutputDevice:   e.outputIdx,
		InputChannels:  e.config.InputChannels,
		OutputChannels: e.config.OutputChannels,
		SampleRate:     e.config.SampleRate,
		BufferFrames:   e.config.BufferFrames,
		Format:         e.config.Format,
		LowLatency:     e.config.BufferStrategy == StrategyLowLatency,
		Exclusive:      e.config.ExclusiveMode,
	}

	stream, err := e.host.OpenStream(params, e.driverCallback)
	if err != nil {
		return err
	}
	e.stream = stream
	e.config.BufferFrames = stream.BufferFrames()
	e.bridge.Store(&bridgeParams{
		sampleRate:     float64(e.config.SampleRate),
		inputChannels:  e.config.InputChannels,
		outputChannels: e.config.OutputChannels,
	})
	return nil
}

// resolveDevicesLocked binds host device indices for the configured
// selections, checking channel counts against device capabilities.
func (e *Engine) resolveDevicesLocked() error {
	e.inputIdx, e.outputIdx = NoDevice, NoDevice

	if e.config.InputChannels > 0 {
		idx, err := e.resolveLocked(e.config.InputDevice, true, e.config.InputChannels)
		if err != nil {
			return err
		}
		e.inputIdx = idx
	}
	if e.config.OutputChannels > 0 {
		idx, err := e.resolveLocked(e.config.OutputDevice, false, e.config.OutputChannels)
		if err != nil {
			return err
		}
		e.outputIdx = idx
	}
	return nil
}

func (e *Engine) resolveLocked(name string, isInput bool, channels int) (int, error) {
	kind := e.host.Kind()

	if name == "" {
		var (
			idx int
			err error
		)
		if isInput {
			idx, err = e.host.DefaultInputIndex()
		} else {
			idx, err = e.host.DefaultOutputIndex()
		}
		if err != nil || idx < 0 {
			return NoDevice, WrapError(CodeDeviceNotFound, err,
				"no %s", describeSelection(name, direction(isInput)))
		}
		if d, found := e.registry.byIndex(kind, idx); found {
			if err := checkDirection(d, isInput, channels); err != nil {
				return NoDevice, err
			}
		}
		return idx, nil
	}

	devices, err := e.registry.Enumerate(kind)
	if err != nil {
		return NoDevice, err
	}
	for _, d := range devices {
		if d.Name != name {
			continue
		}
		if err := checkDirection(d, isInput, channels); err != nil {
			return NoDevice, err
		}
		return d.Index, nil
	}
	return NoDevice, errDeviceNotFound(name)
}

func (e *Engine) boundDevicesLocked() []Device {
	var out []Device
	if e.inputIdx != NoDevice {
		if d, found := e.registry.byIndex(e.host.Kind(), e.inputIdx); found {
			out = append(out, d)
		}
	}
	if e.outputIdx != NoDevice {
		if d, found := e.registry.byIndex(e.host.Kind(), e.outputIdx); found {
			out = append(out, d)
		}
	}
	return out
}

func checkDirection(d Device, isInput bool, channels int) *Error {
	supports, max := d.Capabilities.SupportsOutput, d.Capabilities.MaxOutputChannels
	if isInput {
		supports, max = d.Capabilities.SupportsInput, d.Capabilities.MaxInputChannels
	}
	if !supports {
		return NewError(CodeDeviceUnavailable, "%s has no %s channels", d.Name, direction(isInput))
	}
	if channels > max {
		return NewError(CodeInvalidConfiguration,
			"%s supports at most %d %s channels, requested %d", d.Name, max, direction(isInput), channels)
	}
	return nil
}

func direction(isInput bool) string {
	if isInput {
		return "input"
	}
	return "output"
}
