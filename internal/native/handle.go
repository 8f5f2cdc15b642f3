package native

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Kind is the type of a native model object.
type Kind int

const (
	FaceDetector Kind = iota
	ShapePredictor
	FaceEmbedder
)

func (k Kind) String() string {
	switch k {
	case FaceDetector:
		return "face detector"
	case ShapePredictor:
		return "shape predictor"
	case FaceEmbedder:
		return "face embedder"
	default:
		return "unknown"
	}
}

// HandleID is an opaque reference into the native library's memory. It is
// only meaningful inside the process that obtained it.
type HandleID uint64

// Backend constructs and destroys native model objects.
type Backend interface {
	NewHandle(kind Kind, modelPath string) (HandleID, error)
	FreeHandle(kind Kind, id HandleID)
}

// noCopy makes go vet flag copies of the struct that embeds it.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Handle owns one native model object. The object is destroyed exactly once,
// when the owning Registry is closed.
type Handle struct {
	noCopy noCopy

	kind Kind
	path string
	id   HandleID

	mu      sync.Mutex
	release sync.Once
}

func (h *Handle) Kind() Kind {
	return h.kind
}

func (h *Handle) Path() string {
	return h.path
}

// ID returns the raw native reference. Callers must hold the handle locked
// (see Lock) while the native side uses it.
func (h *Handle) ID() HandleID {
	return h.id
}

func (h *Handle) free(b Backend) {
	h.release.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		b.FreeHandle(h.kind, h.id)
		h.id = 0
	})
}

type handleKey struct {
	kind Kind
	path string
}

// Registry caches handles by model kind and path so that every native object
// is constructed once and is never used by two calls at the same time.
type Registry struct {
	backend Backend
	log     *zap.Logger

	mu      sync.Mutex
	handles map[handleKey]*Handle
	closed  bool
}

func NewRegistry(backend Backend, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		backend: backend,
		log:     log,
		handles: map[handleKey]*Handle{},
	}
}

// Acquire returns the handle for kind and modelPath, constructing the native
// object on first use. Failed constructions are not cached.
func (r *Registry) Acquire(kind Kind, modelPath string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	key := handleKey{kind: kind, path: modelPath}
	if h, ok := r.handles[key]; ok {
		return h, nil
	}

	id, err := r.backend.NewHandle(kind, modelPath)
	if err != nil {
		return nil, err
	}

	h := &Handle{kind: kind, path: modelPath, id: id}
	r.handles[key] = h

	r.log.Debug("native handle created",
		zap.Stringer("kind", kind),
		zap.String("model_path", modelPath),
		zap.Uint64("handle", uint64(id)))

	return h, nil
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Close destroys every native object. It waits for in-flight calls holding a
// handle and is safe to call more than once.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	for key, h := range r.handles {
		h.free(r.backend)
		delete(r.handles, key)
		r.log.Debug("native handle released",
			zap.Stringer("kind", key.kind),
			zap.String("model_path", key.path))
	}

	return nil
}

// Lock locks the handles in kind order and returns the function that unlocks
// them. A fixed order keeps two calls sharing handles from deadlocking.
func Lock(handles ...*Handle) (unlock func()) {
	sorted := make([]*Handle, len(handles))
	copy(sorted, handles)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].kind < sorted[j].kind
	})

	for _, h := range sorted {
		h.mu.Lock()
	}

	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			sorted[i].mu.Unlock()
		}
	}
}
