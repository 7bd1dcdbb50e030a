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

// Package telemetry publishes engine statistics and tapped PCM audio over
// NATS. Subjects are per engine: audio.stats.<engine-id> carries JSON
// snapshots, audio.frames.<engine-id> carries binary PCM frames.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/harmonixlabs/audio-engine-go/internal/audio"
)

// Conn is the messaging surface the publisher needs, for dependency
// injection in tests.
type Conn interface {
	Publish(subject string, data []byte) error
	Flush() error
	Close()
}

// ConnAdapter adapts *nats.Conn to the Conn interface.
type ConnAdapter struct {
	conn *nats.Conn
}

func NewConnAdapter(conn *nats.Conn) *ConnAdapter {
	return &ConnAdapter{conn: conn}
}

func (a *ConnAdapter) Publish(subject string, data []byte) error {
	return a.conn.Publish(subject, data)
}

func (a *ConnAdapter) Flush() error {
	return a.conn.Flush()
}

func (a *ConnAdapter) Close() {
	a.conn.Close()
}

// Connect dials NATS with retry.
func Connect(url string, log zerolog.Logger) (Conn, error) {
	var nc *nats.Conn
	var err error

	for i := 0; i < 5; i++ {
		nc, err = nats.Connect(url)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("failed to connect to NATS")
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after 5 attempts: %w", err)
	}

	log.Info().Str("url", url).Msg("connected to NATS")
	return NewConnAdapter(nc), nil
}

// Stats is one JSON snapshot of an engine's state and counters.
type Stats struct {
	EngineID     string  `json:"engine_id"`
	Backend      string  `json:"backend"`
	State        string  `json:"state"`
	SampleRate   int     `json:"sample_rate"`
	BufferFrames int     `json:"buffer_frames"`

	StreamTimeSec float64 `json:"stream_time_sec"`
	Callbacks     int64   `json:"callbacks"`
	Xruns         int64   `json:"xruns"`
	CPUUsage      float64 `json:"cpu_usage"`

	TheoreticalLatencyMs float64 `json:"theoretical_latency_ms"`
	MeasuredLatencyMs    float64 `json:"measured_latency_ms"`
	JitterMs             float64 `json:"jitter_ms"`

	Timestamp int64 `json:"timestamp_us"` // Unix microseconds
}

// Snapshot reads the engine's current figures into a Stats record.
func Snapshot(e *audio.Engine, engineID string) Stats {
	latency := e.MeasureLatency()
	return Stats{
		EngineID:             engineID,
		Backend:              e.BackendKind().String(),
		State:                e.State().String(),
		SampleRate:           e.ActualSampleRate(),
		BufferFrames:         e.ActualBufferSize(),
		StreamTimeSec:        e.StreamTime(),
		Callbacks:            e.CallbackCount(),
		Xruns:                latency.Xruns,
		CPUUsage:             latency.CPUUsage,
		TheoreticalLatencyMs: latency.TheoreticalMs,
		MeasuredLatencyMs:    latency.MeasuredMs,
		JitterMs:             latency.JitterMs,
		Timestamp:            time.Now().UnixMicro(),
	}
}

// Publisher emits engine telemetry on an established connection. It does not
// own the connection's lifecycle.
type Publisher struct {
	conn     Conn
	engineID string
	log      zerolog.Logger
}

func NewPublisher(conn Conn, engineID string, log zerolog.Logger) *Publisher {
	return &Publisher{
		conn:     conn,
		engineID: engineID,
		log:      log.With().Str("component", "telemetry").Str("engine_id", engineID).Logger(),
	}
}

func (p *Publisher) StatsSubject() string {
	return "audio.stats." + p.engineID
}

func (p *Publisher) FramesSubject() string {
	return "audio.frames." + p.engineID
}

// PublishStats publishes one snapshot of the engine's counters.
func (p *Publisher) PublishStats(e *audio.Engine) error {
	stats := Snapshot(e, p.engineID)
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := p.conn.Publish(p.StatsSubject(), data); err != nil {
		return fmt.Errorf("failed to publish stats: %w", err)
	}
	return nil
}

// PublishFrame publishes one serialized binary frame on the frames subject.
func (p *Publisher) PublishFrame(data []byte) error {
	return p.conn.Publish(p.FramesSubject(), data)
}

// Run publishes stats at the given interval until ctx is cancelled. Publish
// failures are logged and do not stop the loop.
func (p *Publisher) Run(ctx context.Context, e *audio.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.log.Info().Dur("interval", interval).Str("subject", p.StatsSubject()).Msg("stats publisher running")
	for {
		select {
		case <-ctx.Done():
			_ = p.conn.Flush()
			p.log.Debug().Msg("stats publisher stopped")
			return
		case <-ticker.C:
			if err := p.PublishStats(e); err != nil {
				p.log.Warn().Err(err).Msg("stats publish failed")
			}
		}
	}
}
