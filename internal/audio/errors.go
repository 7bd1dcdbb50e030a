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
)

// Code classifies every failure the engine can report. The set is closed:
// driver-specific failures are folded into CodePlatformSpecific.
type Code int

const (
	CodeNone Code = iota
	CodeDeviceNotFound
	CodeDeviceUnavailable
	CodeInvalidConfiguration
	CodeSampleRateUnsupported
	CodeBufferSizeUnsupported
	CodeBackendInitFailed
	CodeBackendStartFailed
	CodeBackendStopFailed
	CodeRealTimePriorityFailed
	CodeCallbackError
	CodeStreamClosed
	CodePlatformSpecific
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "None"
	case CodeDeviceNotFound:
		return "DeviceNotFound"
	case CodeDeviceUnavailable:
		return "DeviceUnavailable"
	case CodeInvalidConfiguration:
		return "InvalidConfiguration"
	case CodeSampleRateUnsupported:
		return "SampleRateUnsupported"
	case CodeBufferSizeUnsupported:
		return "BufferSizeUnsupported"
	case CodeBackendInitFailed:
		return "BackendInitFailed"
	case CodeBackendStartFailed:
		return "BackendStartFailed"
	case CodeBackendStopFailed:
		return "BackendStopFailed"
	case CodeRealTimePriorityFailed:
		return "RealTimePriorityFailed"
	case CodeCallbackError:
		return "CallbackError"
	case CodeStreamClosed:
		return "StreamClosed"
	case CodePlatformSpecific:
		return "PlatformSpecificError"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is the failure type surfaced by every engine and registry operation.
type Error struct {
	Code    Code
	Message string
	Err     error // wrapped driver error, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with a formatted message.
func NewError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a taxonomy code to a driver error.
func WrapError(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the taxonomy code from an error chain. Errors that do not
// carry a code report CodePlatformSpecific; nil reports CodeNone.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodePlatformSpecific
}

func errDeviceNotFound(name string) *Error {
	if name == "" {
		return NewError(CodeDeviceNotFound, "no matching audio device")
	}
	return NewError(CodeDeviceNotFound, "audio device not found: %s", name)
}

func errUnsupportedSampleRate(requested int, device string) *Error {
	return NewError(CodeSampleRateUnsupported,
		"sample rate %d Hz not supported by %s", requested, device)
}

func errUnsupportedBufferSize(requested, min, max int) *Error {
	return NewError(CodeBufferSizeUnsupported,
		"buffer size %d frames outside supported range [%d, %d]", requested, min, max)
}
