package jdlib

import (
	"errors"

	"github.com/dimuls/jdlib/internal/native"
)

var (
	// ErrUnsupportedPlatform is returned by the constructors when no packaged
	// native binary exists for this operating system or architecture.
	ErrUnsupportedPlatform = native.ErrUnsupportedPlatform

	// ErrUnsupportedCPU is returned by the constructors when the CPU cannot
	// run the packaged native binary.
	ErrUnsupportedCPU = native.ErrUnsupportedCPU

	// ErrNoResult is returned by the detection operations when the native
	// library reports nothing. It is not a failure of the caller's input.
	ErrNoResult = native.ErrNoResult

	// ErrClosed is returned by operations on a closed Jdlib.
	ErrClosed = native.ErrClosed

	// ErrInvalidArgument is returned before any native call when the input
	// cannot be handed to the native library.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEmbeddingModelNotConfigured is returned by the embedding operations
	// of an instance constructed without an embedding model path.
	ErrEmbeddingModelNotConfigured = errors.New("path to face embedding model isn't provided")
)

// LoadError describes why the native library could not be linked.
type LoadError = native.LoadError

// ModelLoadError describes a model file the native library refused.
type ModelLoadError = native.ModelLoadError

// Platform identifies a supported operating system and architecture.
type Platform = native.Platform

// CurrentPlatform resolves the platform of the running process.
func CurrentPlatform() (Platform, error) {
	return native.CurrentPlatform()
}
