package jdlib

import (
	"io/fs"

	"go.uber.org/zap"

	"github.com/dimuls/jdlib/internal/native"
)

// Option configures a Jdlib. WithTempDir, WithLibraryPath and WithPackage
// only take effect for the first instance constructed in a process, which is
// the one that links the native library. Later instances given different
// ones ignore them and log a warning.
type Option func(*options)

type options struct {
	logger      *zap.Logger
	tempDir     string
	libraryPath string
	pkg         fs.FS
}

func defaultOptions() options {
	return options{logger: zap.NewNop()}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTempDir sets the directory the packaged native binary is staged in.
func WithTempDir(dir string) Option {
	return func(o *options) {
		o.tempDir = dir
	}
}

// WithLibraryPath loads the native library from path instead of the
// packaged binary.
func WithLibraryPath(path string) Option {
	return func(o *options) {
		o.libraryPath = path
	}
}

// WithPackage replaces the filesystem holding the packaged binaries. Files
// are looked up as lib/<os>/<arch>/<library name>.
func WithPackage(fsys fs.FS) Option {
	return func(o *options) {
		o.pkg = fsys
	}
}

func (o options) loader() native.Loader {
	return native.Loader{
		FS:          o.pkg,
		LibraryPath: o.libraryPath,
		TempDir:     o.tempDir,
		Logger:      o.logger,
	}
}
