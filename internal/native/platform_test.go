package native

import (
	"errors"
	"testing"
)

func TestResolvePlatform(t *testing.T) {
	tests := []struct {
		goos, goarch string
		wantPath     string
		wantErr      bool
	}{
		{"linux", "amd64", "lib/linux/amd64/libjdlib.so", false},
		{"linux", "arm64", "lib/linux/arm64/libjdlib.so", false},
		{"darwin", "amd64", "lib/macos/amd64/libjdlib.dylib", false},
		{"darwin", "arm64", "lib/macos/arm64/libjdlib.dylib", false},
		{"windows", "amd64", "", true},
		{"freebsd", "amd64", "", true},
		{"linux", "386", "", true},
		{"darwin", "riscv64", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			p, err := ResolvePlatform(tt.goos, tt.goarch)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedPlatform) {
					t.Fatalf("Expected ErrUnsupportedPlatform, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolvePlatform failed: %v", err)
			}
			if got := p.LibraryPath(); got != tt.wantPath {
				t.Errorf("LibraryPath() = %q, want %q", got, tt.wantPath)
			}
		})
	}
}

func TestPlatformString(t *testing.T) {
	p := Platform{OS: "macos", Arch: "arm64"}
	if p.String() != "macos/arm64" {
		t.Errorf("String() = %q", p.String())
	}
	if p.LibraryName() != "libjdlib.dylib" {
		t.Errorf("LibraryName() = %q", p.LibraryName())
	}
}
