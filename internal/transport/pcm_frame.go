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
	"fmt"
	"io"
	"math"
)

// Binary frame protocol for publishing PCM audio and engine statistics over
// a message bus. Fixed big-endian header, raw payload.

// FrameType identifies the payload carried by a frame.
type FrameType uint8

const (
	FrameTypePCM       FrameType = 0x01 // interleaved big-endian float32 samples
	FrameTypeStreamEnd FrameType = 0x02 // no payload, stream is over
	FrameTypeStats     FrameType = 0x10 // JSON-encoded engine statistics
)

// Frame is one unit on the wire.
type Frame struct {
	Type       FrameType
	Channels   uint8  // interleaved channel count, 0 for non-PCM frames
	SampleRate uint32 // Hz, 0 for non-PCM frames
	Sequence   uint32
	StreamTime uint64 // engine stream time in microseconds
	Timestamp  uint64 // wall clock, Unix microseconds
	Data       []byte
}

// FrameHeader is the fixed-size header (36 bytes).
type FrameHeader struct {
	Magic      uint32
	Version    uint8
	Type       FrameType
	Channels   uint8
	Reserved   uint8
	Length     uint32
	SampleRate uint32
	Sequence   uint32
	StreamTime uint64
	Timestamp  uint64
}

const (
	// Magic number for frame validation, "AUDF" in big-endian.
	FrameMagic = 0x41554446

	FrameVersion = 1

	// A 4096-frame stereo float32 buffer is 32 KiB; 64 KiB leaves headroom
	// for higher channel counts without letting frames grow unbounded.
	MaxFrameSize = 64 * 1024
	HeaderSize   = 36
	MaxDataSize  = MaxFrameSize - HeaderSize
)

// Serialize converts a frame to binary format
func (f *Frame) Serialize() ([]byte, error) {
	if len(f.Data) > MaxDataSize {
		return nil, fmt.Errorf("frame data too large: %d bytes (max %d)", len(f.Data), MaxDataSize)
	}

	header := FrameHeader{
		Magic:      FrameMagic,
		Version:    FrameVersion,
		Type:       f.Type,
		Channels:   f.Channels,
		Length:     uint32(len(f.Data)), //nolint:gosec // G115: bounded by MaxDataSize above
		SampleRate: f.SampleRate,
		Sequence:   f.Sequence,
		StreamTime: f.StreamTime,
		Timestamp:  f.Timestamp,
	}

	buf := new(bytes.Buffer)
	buf.Grow(HeaderSize + len(f.Data))

	if err := binary.Write(buf, binary.BigEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write frame header: %w", err)
	}
	if len(f.Data) > 0 {
		if _, err := buf.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to write frame data: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// DeserializeFrame converts binary data back to a frame
func DeserializeFrame(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("frame too small: %d bytes (min %d)", len(data), HeaderSize)
	}

	buf := bytes.NewReader(data)
	header, err := readHeader(buf)
	if err != nil {
		return nil, err
	}

	expectedSize := HeaderSize + int(header.Length)
	if len(data) != expectedSize {
		return nil, fmt.Errorf("frame size mismatch: got %d bytes, expected %d", len(data), expectedSize)
	}

	frame := &Frame{
		Type:       header.Type,
		Channels:   header.Channels,
		SampleRate: header.SampleRate,
		Sequence:   header.Sequence,
		StreamTime: header.StreamTime,
		Timestamp:  header.Timestamp,
	}
	if header.Length > 0 {
		frame.Data = make([]byte, header.Length)
		if _, err := io.ReadFull(buf, frame.Data); err != nil {
			return nil, fmt.Errorf("failed to read frame data: %w", err)
		}
	}

	return frame, nil
}

// ParseFrameHeader parses just the header, for incremental reads.
func ParseFrameHeader(headerData []byte) (*FrameHeader, error) {
	if len(headerData) != HeaderSize {
		return nil, fmt.Errorf("invalid header size: %d bytes (expected %d)", len(headerData), HeaderSize)
	}
	return readHeader(bytes.NewReader(headerData))
}

func readHeader(r io.Reader) (*FrameHeader, error) {
	var header FrameHeader
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}
	if header.Magic != FrameMagic {
		return nil, fmt.Errorf("invalid frame magic: 0x%08X (expected 0x%08X)", header.Magic, FrameMagic)
	}
	if header.Version != FrameVersion {
		return nil, fmt.Errorf("unsupported frame version: %d", header.Version)
	}
	if header.Length > MaxDataSize {
		return nil, fmt.Errorf("frame data too large: %d bytes (max %d)", header.Length, MaxDataSize)
	}
	return &header, nil
}

// NewPCMFrame packs interleaved float32 samples into a PCM frame. streamTime
// is the engine stream time in seconds; timestamp is Unix microseconds.
func NewPCMFrame(channels uint8, sampleRate, sequence uint32, streamTime float64, timestamp uint64, samples []float32) *Frame {
	return &Frame{
		Type:       FrameTypePCM,
		Channels:   channels,
		SampleRate: sampleRate,
		Sequence:   sequence,
		StreamTime: uint64(streamTime * 1e6),
		Timestamp:  timestamp,
		Data:       EncodeSamples(samples),
	}
}

// NewStreamEndFrame marks the end of a published stream.
func NewStreamEndFrame(sequence uint32, timestamp uint64) *Frame {
	return &Frame{Type: FrameTypeStreamEnd, Sequence: sequence, Timestamp: timestamp}
}

// NewStatsFrame wraps a JSON statistics payload.
func NewStatsFrame(sequence uint32, timestamp uint64, payload []byte) *Frame {
	return &Frame{Type: FrameTypeStats, Sequence: sequence, Timestamp: timestamp, Data: payload}
}

// EncodeSamples converts float32 samples to big-endian bytes.
func EncodeSamples(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.BigEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// Samples decodes a PCM frame's payload back to float32 samples.
func (f *Frame) Samples() ([]float32, error) {
	if f.Type != FrameTypePCM {
		return nil, fmt.Errorf("not a PCM frame: type 0x%02X", uint8(f.Type))
	}
	if len(f.Data)%4 != 0 {
		return nil, fmt.Errorf("PCM payload not sample-aligned: %d bytes", len(f.Data))
	}
	out := make([]float32, len(f.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(f.Data[i*4:]))
	}
	return out, nil
}

// Frames is the number of sample frames in a PCM payload.
func (f *Frame) Frames() int {
	if f.Channels == 0 {
		return 0
	}
	return len(f.Data) / 4 / int(f.Channels)
}

// IsValid checks structural validity.
func (f *Frame) IsValid() bool {
	if len(f.Data) > MaxDataSize {
		return false
	}
	if f.Type == FrameTypePCM && (f.Channels == 0 || f.SampleRate == 0) {
		return false
	}
	return true
}

// Size returns the total serialized size of the frame
func (f *Frame) Size() int {
	return HeaderSize + len(f.Data)
}
