// Copyright 2023 The acquirecloud Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package errors

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// The general error taxonomy. Callers should wrap one of these with
// fmt.Errorf("...: %w", ErrXxx) and test for it with Is(), never compare
// errors by pointer equality across a wrap boundary.
var (
	// ErrInvalid reports that the caller supplied an invalid argument (bad
	// size, negative index, mismatched handle).
	ErrInvalid = errors.New("invalid argument")
	// ErrExist reports that the thing the caller tried to create already exists.
	ErrExist = errors.New("already exists")
	// ErrNotExist reports that the thing the caller addressed is not there.
	ErrNotExist = errors.New("does not exist")
	// ErrClosed reports that the object the caller addressed is already closed.
	ErrClosed = errors.New("already closed")
	// ErrExhausted reports that a bounded resource (a group, a queue) has no
	// more capacity for the request.
	ErrExhausted = errors.New("exhausted")
	// ErrConflict reports that a concurrent change made the requested
	// operation impossible to complete as requested.
	ErrConflict = errors.New("conflict")
	// ErrInternal reports an unexpected internal condition.
	ErrInternal = errors.New("internal error")
	// ErrDataLoss reports that continuing the operation would lose data.
	ErrDataLoss = errors.New("data loss")
	// ErrUnimplemented reports that the operation is not implemented.
	ErrUnimplemented = errors.New("not implemented")
	// ErrNotAuthorized reports that the caller is not allowed to perform
	// the operation.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrCanceled reports that the operation was canceled.
	ErrCanceled = errors.New("canceled")
	// ErrCommunication reports a transport-level failure talking to a
	// collaborator.
	ErrCommunication = errors.New("communication error")
)

// Is is a synonym for the standard errors.Is, kept here so callers only
// need to import this package for both the sentinels and the check.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a synonym for the standard errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

const jsonErrorMarker = " "

// EmbedObject wraps the sentinel err and embeds obj's value in its message,
// so it can be recovered later by ExtractObject. obj must support
// strconv.Itoa-style formatting for the simple, int-like values this
// package uses it for; panics if obj or err is nil, or if err is already
// an embedding produced by EmbedObject.
func EmbedObject(obj any, err error) error {
	if obj == nil {
		panic("EmbedObject(): obj must not be nil")
	}
	if err == nil {
		panic("EmbedObject(): err must not be nil")
	}
	if strings.Contains(err.Error(), jsonErrorMarker) {
		panic("EmbedObject(): err is already an object-embedding error")
	}
	return fmt.Errorf("%s%v%s: %w", jsonErrorMarker, obj, jsonErrorMarker, err)
}

// ExtractObject recovers an int embedded by EmbedObject from err's message.
// It returns false if err is nil or carries no embedded object.
func ExtractObject(err error, i *int) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	start := strings.Index(msg, jsonErrorMarker)
	if start < 0 {
		return false
	}
	rest := msg[start+len(jsonErrorMarker):]
	end := strings.Index(rest, jsonErrorMarker)
	if end < 0 {
		return false
	}
	v, err2 := strconv.Atoi(rest[:end])
	if err2 != nil {
		return false
	}
	*i = v
	return true
}
