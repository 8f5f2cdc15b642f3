package native

import (
	"fmt"
	"path"
	"runtime"
)

// LibraryBaseName is the canonical name of the packaged native library.
const LibraryBaseName = "jdlib"

// Platform identifies the packaged binary that can run in this process.
type Platform struct {
	// OS is "linux" or "macos".
	OS   string
	Arch string
}

// ResolvePlatform maps GOOS/GOARCH values to a supported platform.
func ResolvePlatform(goos, goarch string) (Platform, error) {
	var p Platform

	switch goos {
	case "linux":
		p.OS = "linux"
	case "darwin":
		p.OS = "macos"
	default:
		return Platform{}, fmt.Errorf("%w: operating system %q, recompile the native library for it", ErrUnsupportedPlatform, goos)
	}

	switch goarch {
	case "amd64", "arm64":
		p.Arch = goarch
	default:
		return Platform{}, fmt.Errorf("%w: architecture %q on %s", ErrUnsupportedPlatform, goarch, p.OS)
	}

	return p, nil
}

// CurrentPlatform resolves the platform of the running process.
func CurrentPlatform() (Platform, error) {
	return ResolvePlatform(runtime.GOOS, runtime.GOARCH)
}

// LibraryName returns the file name following the platform's shared library
// naming convention.
func (p Platform) LibraryName() string {
	if p.OS == "macos" {
		return "lib" + LibraryBaseName + ".dylib"
	}
	return "lib" + LibraryBaseName + ".so"
}

// LibraryPath returns the location of the packaged binary inside the package
// filesystem.
func (p Platform) LibraryPath() string {
	return path.Join(packageRoot, p.OS, p.Arch, p.LibraryName())
}

func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}
