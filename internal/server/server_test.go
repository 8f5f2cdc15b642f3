package server

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dimuls/jdlib"
	"github.com/dimuls/jdlib/internal/config"
	"github.com/dimuls/jdlib/pixbuf"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDetector struct {
	mu    sync.Mutex
	calls int
	size  image.Point

	rects       []image.Rectangle
	descriptors []jdlib.FaceDescriptor
	err         error
}

func (f *fakeDetector) record(height, width int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.size = image.Point{X: width, Y: height}
}

func (f *fakeDetector) DetectFacePixels(pixels []byte, height, width int) ([]image.Rectangle, error) {
	f.record(height, width)
	return f.rects, f.err
}

func (f *fakeDetector) FaceLandmarksPixels(pixels []byte, height, width int) ([]jdlib.FaceDescriptor, error) {
	f.record(height, width)
	return f.descriptors, f.err
}

func (f *fakeDetector) FaceEmbeddingsPixels(pixels []byte, height, width int) ([]jdlib.FaceDescriptor, error) {
	f.record(height, width)
	return f.descriptors, f.err
}

type memoryCache struct {
	values map[string][]byte
}

func (m *memoryCache) Get(ctx context.Context, key string, v any) (bool, error) {
	data, ok := m.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func (m *memoryCache) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.values[key] = data
	return nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// pngHeader returns the signature and IHDR chunk of an 8-bit gray PNG. It is
// enough for image.DecodeConfig and holds no pixel data.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func upload(t *testing.T, h http.Handler, path, field string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "face.png")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		MaxConcurrent: 1,
		QueueTimeout:  time.Second,
		MaxUploadSize: 1 << 20,
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestDetect(t *testing.T) {
	det := &fakeDetector{rects: []image.Rectangle{image.Rect(10, 20, 50, 70)}}
	h := New(det, nil, testConfig(), Info{}, nil).Handler()

	rec := upload(t, h, "/api/v1/detect", "image", pngBytes(t, 100, 100))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	resp := decode(t, rec)
	if !resp.Found || len(resp.Faces) != 1 {
		t.Fatalf("Unexpected response %+v", resp)
	}
	if got := resp.Faces[0].Rectangle; got != (Rect{X: 10, Y: 20, Width: 40, Height: 50}) {
		t.Errorf("rectangle = %+v", got)
	}
}

func TestDownscaledResultsAreScaledBack(t *testing.T) {
	det := &fakeDetector{descriptors: []jdlib.FaceDescriptor{{
		Rectangle: image.Rect(10, 10, 20, 20),
		Landmarks: []image.Point{{X: 15, Y: 12}},
	}}}
	cfg := testConfig()
	cfg.MaxSize = 100
	h := New(det, nil, cfg, Info{}, nil).Handler()

	rec := upload(t, h, "/api/v1/landmarks", "image", pngBytes(t, 400, 200))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	if det.size != (image.Point{X: 100, Y: 50}) {
		t.Errorf("detector saw %v, want 100x50", det.size)
	}

	resp := decode(t, rec)
	if resp.Width != 400 || resp.Height != 200 {
		t.Errorf("reported size %dx%d, want 400x200", resp.Width, resp.Height)
	}
	face := resp.Faces[0]
	if face.Rectangle != (Rect{X: 40, Y: 40, Width: 40, Height: 40}) {
		t.Errorf("rectangle = %+v", face.Rectangle)
	}
	if face.Landmarks[0] != (Point{X: 60, Y: 48}) {
		t.Errorf("landmark = %+v", face.Landmarks[0])
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		err    error
		status int
		found  bool
	}{
		{"no result", "/api/v1/detect", &jdlibNoResult{}, http.StatusOK, false},
		{"invalid argument", "/api/v1/landmarks", jdlib.ErrInvalidArgument, http.StatusBadRequest, false},
		{"embeddings disabled", "/api/v1/embeddings", jdlib.ErrEmbeddingModelNotConfigured, http.StatusConflict, false},
		{"model load", "/api/v1/embeddings", &jdlib.ModelLoadError{Path: "x.dat", Message: "bad"}, http.StatusInternalServerError, false},
		{"closed", "/api/v1/detect", jdlib.ErrClosed, http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := &fakeDetector{err: tt.err}
			h := New(det, nil, testConfig(), Info{}, nil).Handler()

			rec := upload(t, h, tt.path, "image", pngBytes(t, 10, 10))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status == http.StatusOK {
				resp := decode(t, rec)
				if resp.Found != tt.found || resp.Faces == nil {
					t.Errorf("Unexpected response %+v", resp)
				}
			}
		})
	}
}

// jdlibNoResult matches jdlib.ErrNoResult the way native errors do.
type jdlibNoResult struct{}

func (*jdlibNoResult) Error() string        { return "face detect: no result" }
func (*jdlibNoResult) Is(target error) bool { return target == jdlib.ErrNoResult }

func TestBadUploads(t *testing.T) {
	det := &fakeDetector{}
	cfg := testConfig()
	cfg.MaxUploadSize = 64
	h := New(det, nil, cfg, Info{}, nil).Handler()

	tests := []struct {
		name   string
		field  string
		data   []byte
		status int
	}{
		{"missing field", "file", []byte("x"), http.StatusBadRequest},
		{"not an image", "image", []byte("hello"), http.StatusBadRequest},
		{"too large", "image", make([]byte, 65), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, h, "/api/v1/detect", tt.field, tt.data)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}

	if det.calls != 0 {
		t.Errorf("Expected no detector calls, got %d", det.calls)
	}
}

func TestOversizedImagesAreRejected(t *testing.T) {
	tests := []struct {
		name      string
		maxPixels int64
		w, h      uint32
	}{
		{"too many pixels", 1 << 20, 16000, 16000},
		{"side over the native limit", 0, pixbuf.MaxDimension + 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := &fakeDetector{}
			cfg := testConfig()
			cfg.MaxPixels = tt.maxPixels
			h := New(det, nil, cfg, Info{}, nil).Handler()

			rec := upload(t, h, "/api/v1/detect", "image", pngHeader(tt.w, tt.h))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
			}
			if det.calls != 0 {
				t.Errorf("Expected no detector calls, got %d", det.calls)
			}
		})
	}
}

func TestDecodingWaitsForASlot(t *testing.T) {
	det := &fakeDetector{rects: []image.Rectangle{}}
	cfg := testConfig()
	cfg.QueueTimeout = 10 * time.Millisecond
	s := New(det, nil, cfg, Info{}, nil)

	s.semaphore <- struct{}{}
	defer func() { <-s.semaphore }()

	// A truncated body passes the header check but can't be decoded. With the
	// slot taken the request times out in the queue before decoding starts.
	rec := upload(t, s.Handler(), "/api/v1/detect", "image", pngHeader(100, 100))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestUndecodableImage(t *testing.T) {
	det := &fakeDetector{}
	h := New(det, nil, testConfig(), Info{}, nil).Handler()

	rec := upload(t, h, "/api/v1/detect", "image", pngHeader(100, 100))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}
	if det.calls != 0 {
		t.Errorf("Expected no detector calls, got %d", det.calls)
	}
}

func TestGIFIsRejected(t *testing.T) {
	var buf bytes.Buffer
	if err := gif.Encode(&buf, image.NewPaletted(image.Rect(0, 0, 10, 10), color.Palette{color.Black, color.White}), nil); err != nil {
		t.Fatal(err)
	}

	det := &fakeDetector{}
	h := New(det, nil, testConfig(), Info{}, nil).Handler()

	rec := upload(t, h, "/api/v1/detect", "image", buf.Bytes())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if det.calls != 0 {
		t.Errorf("Expected no detector calls, got %d", det.calls)
	}
}

func TestQueueFull(t *testing.T) {
	det := &fakeDetector{rects: []image.Rectangle{}}
	cfg := testConfig()
	cfg.QueueTimeout = 10 * time.Millisecond
	s := New(det, nil, cfg, Info{}, nil)

	s.semaphore <- struct{}{}
	defer func() { <-s.semaphore }()

	rec := upload(t, s.Handler(), "/api/v1/detect", "image", pngBytes(t, 10, 10))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if det.calls != 0 {
		t.Error("Expected the detector not to be called")
	}
}

func TestCache(t *testing.T) {
	det := &fakeDetector{rects: []image.Rectangle{image.Rect(1, 1, 5, 5)}}
	c := &memoryCache{values: map[string][]byte{}}
	h := New(det, c, testConfig(), Info{}, nil).Handler()

	data := pngBytes(t, 10, 10)

	first := decode(t, upload(t, h, "/api/v1/detect", "image", data))
	second := decode(t, upload(t, h, "/api/v1/detect", "image", data))

	if first.Cached || !second.Cached {
		t.Errorf("cached flags = %v, %v; want false, true", first.Cached, second.Cached)
	}
	if det.calls != 1 {
		t.Errorf("Expected 1 detector call, got %d", det.calls)
	}
	if len(second.Faces) != 1 || second.Faces[0].Rectangle != first.Faces[0].Rectangle {
		t.Errorf("Cached response differs: %+v vs %+v", second, first)
	}

	decode(t, upload(t, h, "/api/v1/landmarks", "image", data))
	if det.calls != 2 {
		t.Errorf("Expected a separate cache entry per operation, got %d calls", det.calls)
	}
}

func TestInfoEndpoints(t *testing.T) {
	info := Info{Version: "1.2.3", Platform: "linux/amd64", Embeddings: true}
	h := New(&fakeDetector{}, nil, testConfig(), info, nil).Handler()

	for _, path := range []string{"/health", "/version", "/platform"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/platform", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body struct {
		Platform   string `json:"platform"`
		Embeddings bool   `json:"embeddings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Platform != "linux/amd64" || !body.Embeddings {
		t.Errorf("Unexpected platform body %+v", body)
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := New(&fakeDetector{}, nil, testConfig(), Info{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run didn't return after cancel")
	}
}
