// Package server exposes face detection, landmarks and embeddings over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // header inspection only, decoding is done by gocv
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dimuls/jdlib"
	"github.com/dimuls/jdlib/internal/cache"
	"github.com/dimuls/jdlib/internal/config"
	"github.com/dimuls/jdlib/pixbuf"
	"github.com/dimuls/jdlib/pixbuf/matbuf"
)

// Detector is the part of *jdlib.Jdlib the server uses.
type Detector interface {
	DetectFacePixels(pixels []byte, height, width int) ([]image.Rectangle, error)
	FaceLandmarksPixels(pixels []byte, height, width int) ([]jdlib.FaceDescriptor, error)
	FaceEmbeddingsPixels(pixels []byte, height, width int) ([]jdlib.FaceDescriptor, error)
}

// Cache stores responses. A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, key string, v any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

// Info is reported by the informational endpoints.
type Info struct {
	Version     string   `json:"version"`
	BuildTime   string   `json:"build_time"`
	GitCommit   string   `json:"git_commit"`
	Platform    string   `json:"platform"`
	CPUFeatures []string `json:"cpu_features"`
	Embeddings  bool     `json:"embeddings"`
}

var errQueueFull = errors.New("processing queue is full, try again later")

type Server struct {
	det   Detector
	cache Cache
	cfg   config.ServerConfig
	info  Info
	log   *zap.Logger

	semaphore chan struct{}
}

func New(det Detector, c Cache, cfg config.ServerConfig, info Info, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Server{
		det:       det,
		cache:     c,
		cfg:       cfg,
		info:      info,
		log:       log,
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Logger(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": s.info.Version,
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    s.info.Version,
			"build_time": s.info.BuildTime,
			"git_commit": s.info.GitCommit,
		})
	})

	r.GET("/platform", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"platform":     s.info.Platform,
			"cpu_features": s.info.CPUFeatures,
			"embeddings":   s.info.Embeddings,
		})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/detect", s.handle("detect", s.detect))
		api.POST("/landmarks", s.handle("landmarks", s.landmarks))
		api.POST("/embeddings", s.handle("embeddings", s.embeddings))
	}

	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errs := make(chan error, 1)
	go func() {
		s.log.Info("server starting", zap.String("addr", addr))
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	s.log.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// operation runs one facade call on b and returns faces in the coordinates
// of the uploaded image, which is b scaled by factor.
type operation func(b pixbuf.Buffer, factor float64) ([]Face, error)

func (s *Server) detect(b pixbuf.Buffer, factor float64) ([]Face, error) {
	rects, err := s.det.DetectFacePixels(b.Pix, b.Height, b.Width)
	if err != nil {
		return nil, err
	}
	return rectFaces(rects, factor), nil
}

func (s *Server) landmarks(b pixbuf.Buffer, factor float64) ([]Face, error) {
	descriptors, err := s.det.FaceLandmarksPixels(b.Pix, b.Height, b.Width)
	if err != nil {
		return nil, err
	}
	return descriptorFaces(descriptors, factor), nil
}

func (s *Server) embeddings(b pixbuf.Buffer, factor float64) ([]Face, error) {
	descriptors, err := s.det.FaceEmbeddingsPixels(b.Pix, b.Height, b.Width)
	if err != nil {
		return nil, err
	}
	return descriptorFaces(descriptors, factor), nil
}

// checkDimensions rejects images too large to decode, judged by their header.
func (s *Server) checkDimensions(c image.Config) error {
	if c.Width > pixbuf.MaxDimension || c.Height > pixbuf.MaxDimension {
		return fmt.Errorf("image is %dx%d, sides are limited to %d pixels",
			c.Width, c.Height, pixbuf.MaxDimension)
	}
	if s.cfg.MaxPixels > 0 && int64(c.Width)*int64(c.Height) > s.cfg.MaxPixels {
		return fmt.Errorf("image is %dx%d, at most %d pixels are accepted",
			c.Width, c.Height, s.cfg.MaxPixels)
	}
	return nil
}

func (s *Server) handle(name string, op operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "image file is required",
				Error:   err.Error(),
			})
			return
		}

		if s.cfg.MaxUploadSize > 0 && file.Size > s.cfg.MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
				Message: fmt.Sprintf("image exceeds the size limit (%d bytes)", s.cfg.MaxUploadSize),
			})
			return
		}

		data, err := readFile(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "failed to read image file",
				Error:   err.Error(),
			})
			return
		}

		ctx := c.Request.Context()
		key := cache.Key(name, data, s.cfg.MaxSize)

		if s.cache != nil {
			var cached Response
			hit, err := s.cache.Get(ctx, key, &cached)
			if err != nil {
				s.log.Warn("failed to get cache", zap.String("key", key), zap.Error(err))
			}
			if hit {
				s.log.Debug("cache hit", zap.String("key", key))
				cached.Cached = true
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		header, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "unsupported or corrupt image, only JPEG and PNG are accepted",
				Error:   err.Error(),
			})
			return
		}
		if err := s.checkDimensions(header); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "image is too large",
				Error:   err.Error(),
			})
			return
		}

		var size image.Point

		faces, err := s.run(ctx, func() ([]Face, error) {
			m, err := matbuf.Decode(data)
			if err != nil {
				return nil, err
			}
			defer m.Close()

			size = image.Point{X: m.Cols(), Y: m.Rows()}

			b, factor, err := matbuf.Fit(m, s.cfg.MaxSize)
			if err != nil {
				return nil, err
			}

			s.log.Debug("processing image",
				zap.String("op", name),
				zap.String("format", format),
				zap.Int("width", size.X),
				zap.Int("height", size.Y),
				zap.Float64("scale", factor))

			return op(b, factor)
		})

		switch {
		case errors.Is(err, errQueueFull):
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Message: err.Error()})
			return
		case errors.Is(err, matbuf.ErrUnreadable):
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: "failed to decode image", Error: err.Error()})
			return
		case errors.Is(err, jdlib.ErrNoResult):
			c.JSON(http.StatusOK, Response{Success: true, Found: false, Width: size.X, Height: size.Y, Faces: []Face{}})
			return
		case errors.Is(err, jdlib.ErrInvalidArgument):
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid image", Error: err.Error()})
			return
		case errors.Is(err, jdlib.ErrEmbeddingModelNotConfigured):
			c.JSON(http.StatusConflict, ErrorResponse{Message: "embeddings are disabled on this server", Error: err.Error()})
			return
		case err != nil:
			s.log.Error("failed to process image", zap.String("op", name), zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "failed to process image", Error: err.Error()})
			return
		}

		resp := Response{Success: true, Found: true, Width: size.X, Height: size.Y, Faces: faces}

		if s.cache != nil {
			if err := s.cache.Set(ctx, key, resp); err != nil {
				s.log.Warn("failed to set cache", zap.String("key", key), zap.Error(err))
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}

// run waits for a free slot and calls fn, which decodes, resizes and runs
// the native call. The wait is abandoned when ctx is done or the queue
// timeout passes; fn itself always runs to completion because native calls
// can't be interrupted.
func (s *Server) run(ctx context.Context, fn func() ([]Face, error)) ([]Face, error) {
	if s.cfg.QueueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueueTimeout)
		defer cancel()
	}

	select {
	case s.semaphore <- struct{}{}:
		defer func() { <-s.semaphore }()
	case <-ctx.Done():
		return nil, errQueueFull
	}

	return fn()
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
