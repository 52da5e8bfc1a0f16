// Copyright 2026 The makepy Authors
// SPDX-License-Identifier: Apache-2.0

package makepy

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// ErrorKind classifies a fatal build error.
type ErrorKind int

const (
	// ErrLoad is a load-time error: a conflicting target or a malformed rule.
	ErrLoad ErrorKind = iota
	// ErrMissingPrereq is a declared dependency with no producing rule and
	// no file on disk.
	ErrMissingPrereq
	// ErrUnknownGoal is a requested target that is neither registered nor
	// present on disk.
	ErrUnknownGoal
	// ErrSpawn is a failure to start a command's process.
	ErrSpawn
	// ErrCommandFailed is a command that ran and exited nonzero.
	ErrCommandFailed
	// ErrCycle is a dependency cycle detected by the scheduler's
	// fixed-point check.
	ErrCycle
)

func (k ErrorKind) String() string {
	switch k {
	case ErrLoad:
		return "load error"
	case ErrMissingPrereq:
		return "missing prerequisite"
	case ErrUnknownGoal:
		return "unknown goal"
	case ErrSpawn:
		return "spawn failure"
	case ErrCommandFailed:
		return "command failed"
	case ErrCycle:
		return "dependency cycle"
	default:
		return "error"
	}
}

// BuildError is a fatal error produced by the engine, carrying a
// classification kind and a stack trace captured at the point of
// creation so that --log-level=debug can print it at the CLI boundary.
type BuildError struct {
	Kind  ErrorKind
	inner *goerrors.Error
}

func newBuildError(kind ErrorKind, format string, args ...any) *BuildError {
	return &BuildError{
		Kind:  kind,
		inner: goerrors.Wrap(fmt.Errorf(format, args...), 1),
	}
}

func (e *BuildError) Error() string {
	return e.inner.Error()
}

func (e *BuildError) Unwrap() error {
	return e.inner.Err
}

// Stack returns a formatted stack trace captured when the error was
// created.
func (e *BuildError) Stack() string {
	return string(e.inner.Stack())
}
