//go:build cgo && (linux || darwin)

package native

// #cgo linux LDFLAGS: -ldl
// #cgo CFLAGS: -Wall
// #include <dlfcn.h>
// #include <stdlib.h>
// #include <string.h>
// #include "jdlib.h"
//
// static void *jdlib_dlopen(const char *path, char **error_message) {
//     void *lib = dlopen(path, RTLD_NOW | RTLD_LOCAL);
//     if (lib == NULL) {
//         const char *e = dlerror();
//         *error_message = strdup(e != NULL ? e : "dlopen failed");
//     }
//     return lib;
// }
//
// static void *jdlib_dlsym(void *lib, const char *name, char **error_message) {
//     dlerror();
//     void *sym = dlsym(lib, name);
//     if (sym == NULL) {
//         const char *e = dlerror();
//         *error_message = strdup(e != NULL ? e : "symbol not found");
//     }
//     return sym;
// }
//
// static void jdlib_dlclose(void *lib) {
//     dlclose(lib);
// }
//
// static int32_t jdlib_call_abi_version(void *fn) {
//     return ((int32_t (*)(void))fn)();
// }
//
// static uint64_t jdlib_call_detector_new(void *fn, char **error_message) {
//     return ((uint64_t (*)(char **))fn)(error_message);
// }
//
// static uint64_t jdlib_call_model_new(void *fn, const char *path, char **error_message) {
//     return ((uint64_t (*)(const char *, char **))fn)(path, error_message);
// }
//
// static void jdlib_call_handle_free(void *fn, uint64_t handle) {
//     ((void (*)(uint64_t))fn)(handle);
// }
//
// static jdlib_result *jdlib_call_detect(void *fn, uint64_t detector,
//         const uint8_t *pixels, int32_t height, int32_t width) {
//     return ((jdlib_result *(*)(uint64_t, const uint8_t *, int32_t, int32_t))fn)(
//         detector, pixels, height, width);
// }
//
// static jdlib_result *jdlib_call_landmarks(void *fn, uint64_t predictor, uint64_t detector,
//         const uint8_t *pixels, int32_t height, int32_t width) {
//     return ((jdlib_result *(*)(uint64_t, uint64_t, const uint8_t *, int32_t, int32_t))fn)(
//         predictor, detector, pixels, height, width);
// }
//
// static jdlib_result *jdlib_call_embeddings(void *fn, uint64_t embedder, uint64_t predictor,
//         uint64_t detector, const uint8_t *pixels, int32_t height, int32_t width) {
//     return ((jdlib_result *(*)(uint64_t, uint64_t, uint64_t, const uint8_t *, int32_t, int32_t))fn)(
//         embedder, predictor, detector, pixels, height, width);
// }
//
// static void jdlib_call_result_free(void *fn, jdlib_result *result) {
//     ((void (*)(jdlib_result *))fn)(result);
// }
//
// static void jdlib_call_string_free(void *fn, char *s) {
//     ((void (*)(char *))fn)(s);
// }
import "C"

import (
	"errors"
	"fmt"
	"image"
	"unsafe"

	"github.com/dimuls/jdlib/pixbuf"
)

// abiVersion must match JDLIB_ABI_VERSION in jdlib.h.
const abiVersion = 1

type symbols struct {
	abiVersion      unsafe.Pointer
	detectorNew     unsafe.Pointer
	predictorNew    unsafe.Pointer
	embedderNew     unsafe.Pointer
	detectorFree    unsafe.Pointer
	predictorFree   unsafe.Pointer
	embedderFree    unsafe.Pointer
	faceDetect      unsafe.Pointer
	facialLandmarks unsafe.Pointer
	faceEmbeddings  unsafe.Pointer
	resultFree      unsafe.Pointer
	stringFree      unsafe.Pointer
}

// Library is the linked native library. It stays linked for the lifetime of
// the process.
type Library struct {
	platform Platform
	lib      unsafe.Pointer
	sym      symbols
}

func openLibrary(p Platform, path string) (*Library, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var cErr *C.char

	lib := C.jdlib_dlopen(cPath, &cErr)
	if lib == nil {
		defer C.free(unsafe.Pointer(cErr))
		return nil, &LoadError{Platform: p, Path: path, Op: "dlopen", Err: errors.New(C.GoString(cErr))}
	}

	l := &Library{platform: p, lib: lib}

	table := []struct {
		name string
		dst  *unsafe.Pointer
	}{
		{"jdlib_abi_version", &l.sym.abiVersion},
		{"jdlib_face_detector_new", &l.sym.detectorNew},
		{"jdlib_shape_predictor_new", &l.sym.predictorNew},
		{"jdlib_face_embedder_new", &l.sym.embedderNew},
		{"jdlib_face_detector_free", &l.sym.detectorFree},
		{"jdlib_shape_predictor_free", &l.sym.predictorFree},
		{"jdlib_face_embedder_free", &l.sym.embedderFree},
		{"jdlib_face_detect", &l.sym.faceDetect},
		{"jdlib_facial_landmarks", &l.sym.facialLandmarks},
		{"jdlib_face_embeddings", &l.sym.faceEmbeddings},
		{"jdlib_result_free", &l.sym.resultFree},
		{"jdlib_string_free", &l.sym.stringFree},
	}

	for _, s := range table {
		cName := C.CString(s.name)
		sym := C.jdlib_dlsym(lib, cName, &cErr)
		C.free(unsafe.Pointer(cName))

		if sym == nil {
			msg := C.GoString(cErr)
			C.free(unsafe.Pointer(cErr))
			C.jdlib_dlclose(lib)
			return nil, &LoadError{Platform: p, Path: path, Op: "dlsym", Err: fmt.Errorf("%s: %s", s.name, msg)}
		}

		*s.dst = sym
	}

	if v := int(C.jdlib_call_abi_version(l.sym.abiVersion)); v != abiVersion {
		C.jdlib_dlclose(lib)
		return nil, &LoadError{Platform: p, Path: path, Op: "abi",
			Err: fmt.Errorf("library implements ABI version %d, want %d", v, abiVersion)}
	}

	return l, nil
}

func (l *Library) Platform() Platform {
	return l.platform
}

// NewHandle constructs a native model object. The detector ignores modelPath.
func (l *Library) NewHandle(kind Kind, modelPath string) (HandleID, error) {
	var (
		cErr *C.char
		id   C.uint64_t
	)

	switch kind {
	case FaceDetector:
		id = C.jdlib_call_detector_new(l.sym.detectorNew, &cErr)
	case ShapePredictor, FaceEmbedder:
		fn := l.sym.predictorNew
		if kind == FaceEmbedder {
			fn = l.sym.embedderNew
		}
		cPath := C.CString(modelPath)
		defer C.free(unsafe.Pointer(cPath))
		id = C.jdlib_call_model_new(fn, cPath, &cErr)
	default:
		return 0, fmt.Errorf("unknown handle kind %d", int(kind))
	}

	if cErr != nil {
		defer C.jdlib_call_string_free(l.sym.stringFree, cErr)
		return 0, &ModelLoadError{Kind: kind, Path: modelPath, Message: C.GoString(cErr)}
	}

	if id == 0 {
		return 0, &ModelLoadError{Kind: kind, Path: modelPath, Message: "native library returned an invalid handle"}
	}

	return HandleID(id), nil
}

func (l *Library) FreeHandle(kind Kind, id HandleID) {
	if id == 0 {
		return
	}

	fn := l.sym.detectorFree
	switch kind {
	case ShapePredictor:
		fn = l.sym.predictorFree
	case FaceEmbedder:
		fn = l.sym.embedderFree
	}

	C.jdlib_call_handle_free(fn, C.uint64_t(id))
}

func (l *Library) FaceDetect(detector HandleID, b pixbuf.Buffer) ([]Face, error) {
	r := C.jdlib_call_detect(l.sym.faceDetect, C.uint64_t(detector),
		pixels(b), C.int32_t(b.Height), C.int32_t(b.Width))
	return l.convertResult("face detect", r)
}

func (l *Library) FacialLandmarks(predictor, detector HandleID, b pixbuf.Buffer) ([]Face, error) {
	r := C.jdlib_call_landmarks(l.sym.facialLandmarks, C.uint64_t(predictor), C.uint64_t(detector),
		pixels(b), C.int32_t(b.Height), C.int32_t(b.Width))
	return l.convertResult("facial landmarks", r)
}

func (l *Library) FaceEmbeddings(embedder, predictor, detector HandleID, b pixbuf.Buffer) ([]Face, error) {
	r := C.jdlib_call_embeddings(l.sym.faceEmbeddings, C.uint64_t(embedder), C.uint64_t(predictor),
		C.uint64_t(detector), pixels(b), C.int32_t(b.Height), C.int32_t(b.Width))
	return l.convertResult("face embeddings", r)
}

// pixels expects a validated, non-empty buffer.
func pixels(b pixbuf.Buffer) *C.uint8_t {
	return (*C.uint8_t)(unsafe.Pointer(&b.Pix[0]))
}

func (l *Library) convertResult(op string, r *C.jdlib_result) ([]Face, error) {
	if r == nil {
		return nil, &ResultError{Op: op}
	}
	defer C.jdlib_call_result_free(l.sym.resultFree, r)

	if r.error_message != nil {
		return nil, &ResultError{Op: op, Message: C.GoString(r.error_message)}
	}

	if r.faces_count <= 0 || r.faces == nil {
		return []Face{}, nil
	}

	cFaces := unsafe.Slice(r.faces, int(r.faces_count))
	faces := make([]Face, 0, len(cFaces))

	for _, f := range cFaces {
		face := Face{
			Rect: image.Rect(
				int(f.rect.x),
				int(f.rect.y),
				int(f.rect.x)+int(f.rect.width),
				int(f.rect.y)+int(f.rect.height),
			),
		}

		if f.points != nil && f.points_count > 0 {
			cPoints := unsafe.Slice(f.points, int(f.points_count))
			face.Points = make([]image.Point, len(cPoints))
			for i, p := range cPoints {
				face.Points[i] = image.Point{X: int(p.x), Y: int(p.y)}
			}
		}

		if f.embedding != nil && f.embedding_size > 0 {
			cEmbedding := unsafe.Slice(f.embedding, int(f.embedding_size))
			face.Embedding = make([]float32, len(cEmbedding))
			for i, v := range cEmbedding {
				face.Embedding[i] = float32(v)
			}
		}

		faces = append(faces, face)
	}

	return faces, nil
}
