package native

import (
	"io"
	"io/fs"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// Loader makes the native library callable from this process.
type Loader struct {
	// FS holds the packaged binaries. Packaged is used when nil.
	FS fs.FS

	// LibraryPath, when set, is loaded directly from disk and no packaged
	// binary is staged.
	LibraryPath string

	// TempDir is where the packaged binary is staged. The system temporary
	// directory is used when empty; it must not be mounted noexec.
	TempDir string

	// GOOS and GOARCH override the running platform.
	GOOS   string
	GOARCH string

	Logger *zap.Logger
}

// Load resolves the platform, stages the packaged binary into a temporary
// file, links it and removes the temporary file again. Unlike Ensure it links
// every time it is called.
func (l Loader) Load() (*Library, error) {
	log := l.Logger
	if log == nil {
		log = zap.NewNop()
	}

	goos, goarch := l.GOOS, l.GOARCH
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}

	p, err := ResolvePlatform(goos, goarch)
	if err != nil {
		return nil, err
	}

	if goarch == runtime.GOARCH {
		if err := checkCPU(); err != nil {
			return nil, &LoadError{Platform: p, Path: p.LibraryPath(), Op: "cpu", Err: err}
		}
	}

	if l.LibraryPath != "" {
		log.Info("loading native library from disk",
			zap.Stringer("platform", p),
			zap.String("path", l.LibraryPath))
		return openLibrary(p, l.LibraryPath)
	}

	staged, err := l.stage(p)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(staged); err != nil {
			log.Warn("failed to remove staged native library",
				zap.String("path", staged), zap.Error(err))
		}
	}()

	log.Debug("native library staged",
		zap.Stringer("platform", p),
		zap.String("source", p.LibraryPath()),
		zap.String("staged", staged))

	lib, err := openLibrary(p, staged)
	if err != nil {
		return nil, err
	}

	log.Info("native library loaded",
		zap.Stringer("platform", p),
		zap.String("source", p.LibraryPath()),
		zap.Strings("cpu_features", cpuFeatures()))

	return lib, nil
}

// stage copies the packaged binary for p into a new temporary file and
// returns its path. On error no file is left behind.
func (l Loader) stage(p Platform) (path string, err error) {
	fsys := l.FS
	if fsys == nil {
		fsys = Packaged
	}

	src, err := fsys.Open(p.LibraryPath())
	if err != nil {
		return "", &LoadError{Platform: p, Path: p.LibraryPath(), Op: "open", Err: err}
	}
	defer src.Close()

	dst, err := os.CreateTemp(l.TempDir, p.LibraryName()+".*")
	if err != nil {
		return "", &LoadError{Platform: p, Path: p.LibraryPath(), Op: "stage", Err: err}
	}
	defer func() {
		if err != nil {
			os.Remove(dst.Name())
		}
	}()

	if _, err = io.Copy(dst, src); err != nil {
		dst.Close()
		return "", &LoadError{Platform: p, Path: p.LibraryPath(), Op: "stage", Err: err}
	}
	if err = dst.Close(); err != nil {
		return "", &LoadError{Platform: p, Path: p.LibraryPath(), Op: "stage", Err: err}
	}

	return dst.Name(), nil
}

var process struct {
	once   sync.Once
	loader Loader
	lib    *Library
	err    error
}

// Ensure loads the native library the first time it is called and returns
// the same library, or the same error, on every later call. A process links
// the library at most once, so a later loader that asks for a different
// source only gets a warning on its own logger.
func Ensure(l Loader) (*Library, error) {
	first := false
	process.once.Do(func() {
		first = true
		process.loader = l
		process.lib, process.err = l.Load()
	})

	if !first && !process.loader.sameSource(l) {
		log := l.Logger
		if log == nil {
			log = zap.NewNop()
		}
		log.Warn("native library is already linked, loader options ignored",
			zap.String("library_path", l.LibraryPath),
			zap.String("temp_dir", l.TempDir),
			zap.Bool("package", l.FS != nil),
			zap.String("linked_library_path", process.loader.LibraryPath),
			zap.String("linked_temp_dir", process.loader.TempDir))
	}

	return process.lib, process.err
}

// sameSource reports whether o would load the library the way l did. A
// package filesystem on o always counts as different since file systems
// can't be compared.
func (l Loader) sameSource(o Loader) bool {
	return o.FS == nil && l.FS == nil &&
		l.LibraryPath == o.LibraryPath &&
		l.TempDir == o.TempDir &&
		l.GOOS == o.GOOS &&
		l.GOARCH == o.GOARCH
}

// CheckCPU reports whether the running CPU can execute the packaged binary.
func CheckCPU() error {
	return checkCPU()
}

// CPUFeatures lists the detected instruction set extensions relevant to the
// packaged binary.
func CPUFeatures() []string {
	return cpuFeatures()
}
