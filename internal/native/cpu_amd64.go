//go:build amd64

package native

import (
	"fmt"

	"golang.org/x/sys/cpu"
)

// The packaged amd64 binaries are compiled with -mavx, dlib's default SIMD
// level for x86-64 builds.
func checkCPU() error {
	if !cpu.X86.HasAVX {
		return fmt.Errorf("%w: packaged binary requires AVX", ErrUnsupportedCPU)
	}
	return nil
}

func cpuFeatures() []string {
	var features []string
	if cpu.X86.HasSSE41 {
		features = append(features, "sse4.1")
	}
	if cpu.X86.HasAVX {
		features = append(features, "avx")
	}
	if cpu.X86.HasAVX2 {
		features = append(features, "avx2")
	}
	if cpu.X86.HasAVX512 {
		features = append(features, "avx512")
	}
	return features
}
