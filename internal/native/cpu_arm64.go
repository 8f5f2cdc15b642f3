//go:build arm64

package native

import (
	"fmt"

	"golang.org/x/sys/cpu"
)

// ASIMD is part of ARMv8-A, so this fails only on emulators that hide it.
func checkCPU() error {
	if !cpu.ARM64.HasASIMD {
		return fmt.Errorf("%w: packaged binary requires NEON", ErrUnsupportedCPU)
	}
	return nil
}

func cpuFeatures() []string {
	var features []string
	if cpu.ARM64.HasASIMD {
		features = append(features, "neon")
	}
	if cpu.ARM64.HasSVE {
		features = append(features, "sve")
	}
	return features
}
