package jdlib

import (
	"fmt"
	"image"

	"github.com/dimuls/jdlib/internal/native"
	"github.com/dimuls/jdlib/pixbuf"
)

// FaceLandmarks returns every detected face with its landmark points, as
// many as the landmarks model defines (68 for
// shape_predictor_68_face_landmarks.dat).
func (j *Jdlib) FaceLandmarks(img image.Image) ([]FaceDescriptor, error) {
	return j.landmarks(pixbuf.FromImage(img))
}

// FaceLandmarksPixels is FaceLandmarks over a BGR pixel buffer.
func (j *Jdlib) FaceLandmarksPixels(pixels []byte, height, width int) ([]FaceDescriptor, error) {
	return j.landmarks(pixbuf.New(pixels, height, width))
}

// FaceEmbeddings returns every detected face with its embedding. It fails
// with ErrEmbeddingModelNotConfigured, whatever img holds, if the instance
// was created by New.
func (j *Jdlib) FaceEmbeddings(img image.Image) ([]FaceDescriptor, error) {
	if !j.HasEmbeddings() {
		return nil, ErrEmbeddingModelNotConfigured
	}
	return j.embeddings(pixbuf.FromImage(img))
}

// FaceEmbeddingsPixels is FaceEmbeddings over a BGR pixel buffer.
func (j *Jdlib) FaceEmbeddingsPixels(pixels []byte, height, width int) ([]FaceDescriptor, error) {
	return j.embeddings(pixbuf.New(pixels, height, width))
}

func (j *Jdlib) landmarks(b pixbuf.Buffer) ([]FaceDescriptor, error) {
	faces, err := j.run(opLandmarks, b)
	if err != nil {
		return nil, err
	}

	descriptors := make([]FaceDescriptor, len(faces))
	for i, f := range faces {
		descriptors[i] = FaceDescriptor{Rectangle: f.Rect, Landmarks: f.Points}
	}

	return descriptors, nil
}

func (j *Jdlib) embeddings(b pixbuf.Buffer) ([]FaceDescriptor, error) {
	faces, err := j.run(opEmbeddings, b)
	if err != nil {
		return nil, err
	}

	descriptors := make([]FaceDescriptor, len(faces))
	for i, f := range faces {
		if len(f.Embedding) != DescriptorSize {
			return nil, &native.ResultError{
				Op:      opEmbeddings.String(),
				Message: fmt.Sprintf("face %d has an embedding of size %d, want %d", i, len(f.Embedding), DescriptorSize),
			}
		}

		var d Descriptor
		copy(d[:], f.Embedding)
		descriptors[i] = FaceDescriptor{Rectangle: f.Rect, Embedding: &d}
	}

	return descriptors, nil
}
