package native

import "embed"

const packageRoot = "lib"

// Packaged holds the native binaries built by csrc/Makefile, laid out as
// lib/<os>/<arch>/<library name>.
//
//go:embed lib
var Packaged embed.FS
