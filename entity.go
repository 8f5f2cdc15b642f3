package jdlib

import "image"

// DescriptorSize is a face embedding size.
const DescriptorSize = 128

// Descriptor is a face embedding.
type Descriptor [DescriptorSize]float32

// FaceDescriptor is one detected face. Landmarks is set by the landmark
// operations and Embedding by the embedding operations, never both.
type FaceDescriptor struct {
	Rectangle image.Rectangle `json:"rectangle"`
	Landmarks []image.Point   `json:"landmarks,omitempty"`
	Embedding *Descriptor     `json:"embedding,omitempty"`
}
