package native

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedPlatform is returned when no packaged binary exists for
	// the running operating system or architecture.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrUnsupportedCPU is returned when the CPU lacks an instruction set
	// extension the packaged binary was compiled for.
	ErrUnsupportedCPU = errors.New("unsupported cpu")

	// ErrNoResult is returned when the native library reports nothing for a
	// detection call.
	ErrNoResult = errors.New("no result")

	// ErrClosed is returned when handles are requested from a closed registry.
	ErrClosed = errors.New("handle registry is closed")
)

// LoadError describes a failure to make the native library callable.
type LoadError struct {
	Platform Platform
	Path     string
	Op       string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load native library %s (%s): %s: %v", e.Path, e.Platform, e.Op, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ModelLoadError is returned when the native library refuses a model file.
type ModelLoadError struct {
	Kind    Kind
	Path    string
	Message string
}

func (e *ModelLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("create %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("create %s from %s: %s", e.Kind, e.Path, e.Message)
}

// ResultError is the native-reported absence of a result. It matches
// ErrNoResult.
type ResultError struct {
	Op      string
	Message string
}

func (e *ResultError) Error() string {
	if e.Message == "" {
		return e.Op + ": " + ErrNoResult.Error()
	}
	return e.Op + ": " + ErrNoResult.Error() + ": " + e.Message
}

func (e *ResultError) Is(target error) bool {
	return target == ErrNoResult
}
