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

package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/harmonixlabs/audio-engine-go/internal/audio"
	"github.com/harmonixlabs/audio-engine-go/internal/transport"
)

type chunk struct {
	buf        []float32
	n          int
	streamTime float64
}

// Tap copies a stream's output buffers to a publisher goroutine that frames
// and publishes them as PCM. The audio-thread side takes preallocated
// buffers from a free list and hands them off without blocking; when the
// listener cannot keep up, buffers are dropped, never queued unbounded.
type Tap struct {
	pub        *Publisher
	channels   int
	sampleRate int

	free    chan []float32
	pending chan chunk
	dropped atomic.Int64

	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
}

// NewTap preallocates depth buffers sized for bufferFrames frames of
// channels-wide audio. Larger buffers delivered later are truncated to that
// size rather than allocated for on the audio thread.
func NewTap(pub *Publisher, channels, sampleRate, bufferFrames, depth int) *Tap {
	if depth <= 0 {
		depth = 8
	}
	t := &Tap{
		pub:        pub,
		channels:   channels,
		sampleRate: sampleRate,
		free:       make(chan []float32, depth),
		pending:    make(chan chunk, depth),
		done:       make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
	for i := 0; i < depth; i++ {
		t.free <- make([]float32, bufferFrames*channels)
	}
	go t.publishLoop()
	return t
}

// Wrap chains the tap behind next: next renders the buffer, then the tap
// captures what was rendered. The returned callback stays wait-free and
// allocation-free on the audio thread.
func (t *Tap) Wrap(next audio.Callback) audio.Callback {
	return func(input, output []float32, frames int, streamTime float64) error {
		if err := next(input, output, frames, streamTime); err != nil {
			return err
		}

		select {
		case buf := <-t.free:
			n := copy(buf, output)
			select {
			case t.pending <- chunk{buf: buf, n: n, streamTime: streamTime}:
			default:
				t.free <- buf
				t.dropped.Add(1)
			}
		default:
			t.dropped.Add(1)
		}
		return nil
	}
}

// Dropped reports how many buffers were discarded because the publisher was
// behind.
func (t *Tap) Dropped() int64 {
	return t.dropped.Load()
}

// Close stops the publisher goroutine and emits a stream-end frame. Safe to
// call more than once.
func (t *Tap) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
		<-t.loopDone
	})
}

func (t *Tap) publishLoop() {
	defer close(t.loopDone)

	var seq uint32
	for {
		select {
		case <-t.done:
			end := transport.NewStreamEndFrame(seq, uint64(time.Now().UnixMicro()))
			if data, err := end.Serialize(); err == nil {
				_ = t.pub.PublishFrame(data)
			}
			_ = t.pub.conn.Flush()
			return
		case c := <-t.pending:
			frame := transport.NewPCMFrame(
				uint8(t.channels), //nolint:gosec // G115: channel counts are tiny
				uint32(t.sampleRate),
				seq,
				c.streamTime,
				uint64(time.Now().UnixMicro()),
				c.buf[:c.n],
			)
			seq++
			if data, err := frame.Serialize(); err == nil {
				if err := t.pub.PublishFrame(data); err != nil {
					t.pub.log.Warn().Err(err).Msg("frame publish failed")
				}
			}
			t.free <- c.buf
		}
	}
}
