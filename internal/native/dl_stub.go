//go:build !cgo || !(linux || darwin)

package native

import (
	"errors"

	"github.com/dimuls/jdlib/pixbuf"
)

var errNoCgo = errors.New("native library loading requires cgo on linux or darwin")

// Library is never returned by this build; see dl.go.
type Library struct {
	platform Platform
}

func openLibrary(p Platform, path string) (*Library, error) {
	return nil, &LoadError{Platform: p, Path: path, Op: "dlopen", Err: errNoCgo}
}

func (l *Library) Platform() Platform {
	return l.platform
}

func (l *Library) NewHandle(kind Kind, modelPath string) (HandleID, error) {
	return 0, errNoCgo
}

func (l *Library) FreeHandle(kind Kind, id HandleID) {}

func (l *Library) FaceDetect(detector HandleID, b pixbuf.Buffer) ([]Face, error) {
	return nil, errNoCgo
}

func (l *Library) FacialLandmarks(predictor, detector HandleID, b pixbuf.Buffer) ([]Face, error) {
	return nil, errNoCgo
}

func (l *Library) FaceEmbeddings(embedder, predictor, detector HandleID, b pixbuf.Buffer) ([]Face, error) {
	return nil, errNoCgo
}
