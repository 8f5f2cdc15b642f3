//go:build !amd64 && !arm64

package native

// Other architectures never get this far: ResolvePlatform rejects them.
func checkCPU() error {
	return nil
}

func cpuFeatures() []string {
	return nil
}
