// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errs defines the typed error taxonomy shared by every component:
// Configuration, NotFound, Validation, Precondition, External, Fatal.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies which taxonomy bucket an error belongs to.
type Kind string

const (
	Configuration Kind = "configuration"
	NotFound      Kind = "not_found"
	Validation    Kind = "validation"
	Precondition  Kind = "precondition"
	External      Kind = "external"
	Fatal         Kind = "fatal"
)

// Error is a taxonomy-tagged error. Component is the originating package
// (e.g. "escalation", "workflow"); Op names the operation that failed.
type Error struct {
	Kind      Kind
	Component string
	Op        string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Component, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Component, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a KindIs sentinel for this error's Kind, so
// callers can write errors.Is(err, errs.KindIs(errs.NotFound)); use
// errors.As for the full struct.
func (e *Error) Is(target error) bool {
	var k *kindSentinel
	if errors.As(target, &k) {
		return e.Kind == k.kind
	}
	return false
}

// kindSentinel lets callers write errors.Is(err, errs.KindIs(errs.NotFound)).
type kindSentinel struct{ kind Kind }

func (k *kindSentinel) Error() string { return string(k.kind) }

// KindIs returns a sentinel usable with errors.Is to test an Error's Kind.
func KindIs(k Kind) error { return &kindSentinel{kind: k} }

// New constructs a tagged Error.
func New(kind Kind, component, op, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Op: op, Message: message, Err: err}
}

func Configf(component, op, format string, args ...any) *Error {
	return New(Configuration, component, op, fmt.Sprintf(format, args...), nil)
}

func NotFoundf(component, op, format string, args ...any) *Error {
	return New(NotFound, component, op, fmt.Sprintf(format, args...), nil)
}

func Validationf(component, op, format string, args ...any) *Error {
	return New(Validation, component, op, fmt.Sprintf(format, args...), nil)
}

func Preconditionf(component, op, format string, args ...any) *Error {
	return New(Precondition, component, op, fmt.Sprintf(format, args...), nil)
}

func Externalf(component, op string, err error, format string, args ...any) *Error {
	return New(External, component, op, fmt.Sprintf(format, args...), err)
}

func Fatalf(component, op string, err error, format string, args ...any) *Error {
	return New(Fatal, component, op, fmt.Sprintf(format, args...), err)
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error; the zero Kind otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
