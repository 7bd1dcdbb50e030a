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

package transport

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestFrameSerialization(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
	}{
		{
			name:  "stream end, no payload",
			frame: NewStreamEndFrame(7, 1756100000000000),
		},
		{
			name: "PCM frame",
			frame: NewPCMFrame(2, 48000, 42, 1.25, 1756100000123456,
				[]float32{0.0, 0.5, -0.5, 1.0, -1.0, 0.25}),
		},
		{
			name:  "stats frame",
			frame: NewStatsFrame(3, 1756100000999999, []byte(`{"xruns":0}`)),
		},
		{
			name: "maximum payload",
			frame: &Frame{
				Type:       FrameTypePCM,
				Channels:   2,
				SampleRate: 48000,
				Sequence:   999,
				Data:       make([]byte, MaxDataSize),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.frame.Serialize()
			if err != nil {
				t.Fatalf("Serialize failed: %v", err)
			}
			if len(data) != tt.frame.Size() {
				t.Errorf("Expected %d bytes, got %d", tt.frame.Size(), len(data))
			}

			got, err := DeserializeFrame(data)
			if err != nil {
				t.Fatalf("Deserialize failed: %v", err)
			}
			if got.Type != tt.frame.Type {
				t.Errorf("Type mismatch: %d vs %d", got.Type, tt.frame.Type)
			}
			if got.Channels != tt.frame.Channels {
				t.Errorf("Channels mismatch: %d vs %d", got.Channels, tt.frame.Channels)
			}
			if got.SampleRate != tt.frame.SampleRate {
				t.Errorf("SampleRate mismatch: %d vs %d", got.SampleRate, tt.frame.SampleRate)
			}
			if got.Sequence != tt.frame.Sequence {
				t.Errorf("Sequence mismatch: %d vs %d", got.Sequence, tt.frame.Sequence)
			}
			if got.StreamTime != tt.frame.StreamTime {
				t.Errorf("StreamTime mismatch: %d vs %d", got.StreamTime, tt.frame.StreamTime)
			}
			if got.Timestamp != tt.frame.Timestamp {
				t.Errorf("Timestamp mismatch: %d vs %d", got.Timestamp, tt.frame.Timestamp)
			}
			if !bytes.Equal(got.Data, tt.frame.Data) {
				t.Error("Payload mismatch after round trip")
			}
		})
	}
}

func TestPCMSamples(t *testing.T) {
	samples := []float32{0.0, 0.5, -0.5, 0.999, -0.999, 1e-7}
	frame := NewPCMFrame(2, 48000, 1, 0.5, 0, samples)

	if frame.Frames() != 3 {
		t.Errorf("Expected 3 sample frames, got %d", frame.Frames())
	}
	if frame.StreamTime != 500000 {
		t.Errorf("Expected stream time 500000 us, got %d", frame.StreamTime)
	}

	decoded, err := frame.Samples()
	if err != nil {
		t.Fatalf("Samples failed: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, samples[i], decoded[i])
		}
	}
}

func TestSamplesRejectsNonPCM(t *testing.T) {
	frame := NewStatsFrame(1, 0, []byte("{}"))
	if _, err := frame.Samples(); err == nil {
		t.Error("Expected an error for a non-PCM frame")
	}

	misaligned := &Frame{Type: FrameTypePCM, Channels: 1, SampleRate: 48000, Data: []byte{1, 2, 3}}
	if _, err := misaligned.Samples(); err == nil {
		t.Error("Expected an error for a misaligned payload")
	}
}

func TestDeserializeFrame_ErrorCases(t *testing.T) {
	valid, err := NewPCMFrame(1, 48000, 1, 0, 0, []float32{0.5}).Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	tests := []struct {
		name     string
		corrupt  func([]byte) []byte
		fragment string
	}{
		{
			name:     "truncated header",
			corrupt:  func(d []byte) []byte { return d[:HeaderSize-1] },
			fragment: "too small",
		},
		{
			name: "bad magic",
			corrupt: func(d []byte) []byte {
				out := append([]byte(nil), d...)
				binary.BigEndian.PutUint32(out[0:], 0x4C4F5141)
				return out
			},
			fragment: "magic",
		},
		{
			name: "unsupported version",
			corrupt: func(d []byte) []byte {
				out := append([]byte(nil), d...)
				out[4] = 99
				return out
			},
			fragment: "version",
		},
		{
			name:     "truncated payload",
			corrupt:  func(d []byte) []byte { return d[:len(d)-2] },
			fragment: "size mismatch",
		},
		{
			name:     "trailing garbage",
			corrupt:  func(d []byte) []byte { return append(append([]byte(nil), d...), 0xFF) },
			fragment: "size mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeserializeFrame(tt.corrupt(valid))
			if err == nil {
				t.Fatal("Expected a deserialization error")
			}
			if !strings.Contains(err.Error(), tt.fragment) {
				t.Errorf("Error %q does not mention %q", err.Error(), tt.fragment)
			}
		})
	}
}

func TestSerializeRejectsOversizedPayload(t *testing.T) {
	frame := &Frame{Type: FrameTypePCM, Channels: 2, SampleRate: 48000, Data: make([]byte, MaxDataSize+1)}
	if _, err := frame.Serialize(); err == nil {
		t.Error("Expected an error for an oversized payload")
	}
	if frame.IsValid() {
		t.Error("Oversized frame must not be valid")
	}
}

func TestParseFrameHeader(t *testing.T) {
	data, err := NewPCMFrame(2, 44100, 5, 2.0, 123, []float32{0, 0}).Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	header, err := ParseFrameHeader(data[:HeaderSize])
	if err != nil {
		t.Fatalf("ParseFrameHeader failed: %v", err)
	}
	if header.Type != FrameTypePCM {
		t.Errorf("Expected PCM type, got %d", header.Type)
	}
	if header.SampleRate != 44100 {
		t.Errorf("Expected 44100 Hz, got %d", header.SampleRate)
	}
	if int(header.Length) != 8 {
		t.Errorf("Expected 8 payload bytes, got %d", header.Length)
	}

	if _, err := ParseFrameHeader(data); err == nil {
		t.Error("Expected an error for a wrong-sized header slice")
	}
}

func TestFrameValidation(t *testing.T) {
	pcmWithoutRate := &Frame{Type: FrameTypePCM, Channels: 2}
	if pcmWithoutRate.IsValid() {
		t.Error("PCM frame without a sample rate must be invalid")
	}

	end := NewStreamEndFrame(1, 0)
	if !end.IsValid() {
		t.Error("Stream end frame must be valid")
	}
}
