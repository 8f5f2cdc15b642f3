// Package jdlib detects faces, locates facial landmarks and extracts face
// embeddings with a native dlib library packaged inside the Go binary.
//
// The native library is staged to a temporary file and linked the first time
// an instance is constructed. Native model objects are created on first use
// and cached per instance until Close. Every native object is used by at most
// one call at a time, so a Jdlib is safe for concurrent use but calls sharing
// a model run one after another.
package jdlib

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dimuls/jdlib/internal/native"
	"github.com/dimuls/jdlib/pixbuf"
)

// library is the native surface the pipeline needs.
type library interface {
	native.Backend
	FaceDetect(detector native.HandleID, b pixbuf.Buffer) ([]native.Face, error)
	FacialLandmarks(predictor, detector native.HandleID, b pixbuf.Buffer) ([]native.Face, error)
	FaceEmbeddings(embedder, predictor, detector native.HandleID, b pixbuf.Buffer) ([]native.Face, error)
}

type Jdlib struct {
	lib     library
	handles *native.Registry
	log     *zap.Logger

	landmarksModelPath string
	embeddingModelPath string
}

// New creates an instance for face detection and landmarks. The embedding
// operations of the returned instance always fail with
// ErrEmbeddingModelNotConfigured. The first call in a process links the
// native library; loader options given to later calls are ignored.
func New(landmarksModelPath string, opts ...Option) (*Jdlib, error) {
	return open(landmarksModelPath, "", opts)
}

// NewWithEmbeddings creates an instance for all operations.
func NewWithEmbeddings(landmarksModelPath, embeddingModelPath string, opts ...Option) (*Jdlib, error) {
	return open(landmarksModelPath, embeddingModelPath, opts)
}

func open(landmarksModelPath, embeddingModelPath string, opts []Option) (*Jdlib, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	lib, err := native.Ensure(o.loader())
	if err != nil {
		o.logger.Error("native library is unusable", zap.Error(err))
		return nil, err
	}

	return newJdlib(lib, landmarksModelPath, embeddingModelPath, o.logger), nil
}

func newJdlib(lib library, landmarksModelPath, embeddingModelPath string, log *zap.Logger) *Jdlib {
	return &Jdlib{
		lib:                lib,
		handles:            native.NewRegistry(lib, log),
		log:                log,
		landmarksModelPath: landmarksModelPath,
		embeddingModelPath: embeddingModelPath,
	}
}

// HasEmbeddings reports whether the instance was given an embedding model.
func (j *Jdlib) HasEmbeddings() bool {
	return j.embeddingModelPath != ""
}

// Close releases every native model object. The native library itself stays
// linked. Operations after Close fail with ErrClosed.
func (j *Jdlib) Close() error {
	return j.handles.Close()
}

type operation int

const (
	opDetect operation = iota
	opLandmarks
	opEmbeddings
)

func (op operation) String() string {
	switch op {
	case opDetect:
		return "detect face"
	case opLandmarks:
		return "face landmarks"
	default:
		return "face embeddings"
	}
}

// run validates the input, acquires the handles op needs, makes the native
// call and returns its faces. Nothing crosses the native boundary unless the
// buffer matches its dimensions.
func (j *Jdlib) run(op operation, b pixbuf.Buffer) ([]native.Face, error) {
	if op == opEmbeddings && j.embeddingModelPath == "" {
		return nil, ErrEmbeddingModelNotConfigured
	}
	if op != opDetect && j.landmarksModelPath == "" {
		return nil, fmt.Errorf("%w: path to facial landmarks model isn't provided", ErrInvalidArgument)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	handles := make([]*native.Handle, 0, 3)

	detector, err := j.handles.Acquire(native.FaceDetector, "")
	if err != nil {
		return nil, err
	}
	handles = append(handles, detector)

	var predictor, embedder *native.Handle

	if op != opDetect {
		predictor, err = j.handles.Acquire(native.ShapePredictor, j.landmarksModelPath)
		if err != nil {
			return nil, err
		}
		handles = append(handles, predictor)
	}

	if op == opEmbeddings {
		embedder, err = j.handles.Acquire(native.FaceEmbedder, j.embeddingModelPath)
		if err != nil {
			return nil, err
		}
		handles = append(handles, embedder)
	}

	unlock := native.Lock(handles...)
	defer unlock()

	// Close may have released a handle between Acquire and Lock.
	for _, h := range handles {
		if h.ID() == 0 {
			return nil, ErrClosed
		}
	}

	var faces []native.Face

	switch op {
	case opDetect:
		faces, err = j.lib.FaceDetect(detector.ID(), b)
	case opLandmarks:
		faces, err = j.lib.FacialLandmarks(predictor.ID(), detector.ID(), b)
	case opEmbeddings:
		faces, err = j.lib.FaceEmbeddings(embedder.ID(), predictor.ID(), detector.ID(), b)
	}

	if err != nil {
		if errors.Is(err, ErrNoResult) {
			j.log.Debug("native library returned no result",
				zap.Stringer("op", op),
				zap.Int("height", b.Height),
				zap.Int("width", b.Width),
				zap.Error(err))
		}
		return nil, err
	}

	return faces, nil
}
