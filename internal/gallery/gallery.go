// Package gallery holds the embeddings of known persons, loaded from a
// directory with one subdirectory per person and face photos inside it.
package gallery

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/dimuls/jdlib"
)

// DefaultThreshold is the largest euclidean distance still considered the
// same person. It is the value the dlib ResNet model was tuned for.
const DefaultThreshold = 0.6

var (
	// ErrUnreadable is returned by an EmbedFunc for files that aren't images.
	// Such files are skipped.
	ErrUnreadable = errors.New("unreadable image")

	ErrNotOneFace = errors.New("photo must contain exactly one face")
)

// EmbedFunc returns the faces found on the photo at path, with embeddings.
type EmbedFunc func(path string) ([]jdlib.FaceDescriptor, error)

// Photo is one file of a person directory.
type Photo struct {
	Person string
	Path   string
}

type Person struct {
	Name        string
	Descriptors []jdlib.Descriptor
}

type Gallery struct {
	Persons []Person
}

// List returns the photos under dir in directory order. Files directly in
// dir and directories below the person level are ignored.
func List(dir string) ([]Photo, error) {
	personDirs, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read persons directory: %w", err)
	}

	var photos []Photo

	for _, personDir := range personDirs {
		if !personDir.IsDir() {
			continue
		}

		files, err := os.ReadDir(filepath.Join(dir, personDir.Name()))
		if err != nil {
			return nil, fmt.Errorf("read person directory: %w", err)
		}

		for _, f := range files {
			if f.IsDir() {
				continue
			}
			photos = append(photos, Photo{
				Person: personDir.Name(),
				Path:   filepath.Join(dir, personDir.Name(), f.Name()),
			})
		}
	}

	return photos, nil
}

// Build embeds every photo and groups the descriptors by person. Each photo
// must show exactly one face. onPhoto, if not nil, is called after every
// photo, skipped ones included.
func Build(photos []Photo, embed EmbedFunc, onPhoto func(Photo)) (*Gallery, error) {
	g := &Gallery{}
	index := map[string]int{}

	for _, p := range photos {
		faces, err := embed(p.Path)
		if onPhoto != nil {
			onPhoto(p)
		}
		if errors.Is(err, ErrUnreadable) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", p.Path, err)
		}
		if len(faces) != 1 {
			return nil, fmt.Errorf("%w: %d faces detected on %s", ErrNotOneFace, len(faces), p.Path)
		}
		if faces[0].Embedding == nil {
			return nil, fmt.Errorf("embed %s: %w", p.Path, jdlib.ErrNoResult)
		}

		i, ok := index[p.Person]
		if !ok {
			i = len(g.Persons)
			index[p.Person] = i
			g.Persons = append(g.Persons, Person{Name: p.Person})
		}
		g.Persons[i].Descriptors = append(g.Persons[i].Descriptors, *faces[0].Embedding)
	}

	return g, nil
}

// Load is List followed by Build.
func Load(dir string, embed EmbedFunc) (*Gallery, error) {
	photos, err := List(dir)
	if err != nil {
		return nil, err
	}
	return Build(photos, embed, nil)
}

// Distance is the euclidean distance between two descriptors.
func Distance(a, b jdlib.Descriptor) float64 {
	var sum float64
	for i := range a {
		sum += math.Pow(float64(a[i])-float64(b[i]), 2)
	}
	return math.Sqrt(sum)
}

// Find returns the person with the descriptor closest to d and the distance
// to it. An empty gallery gives a zero Person and math.MaxFloat64.
func (g *Gallery) Find(d jdlib.Descriptor) (Person, float64) {
	var minPerson Person
	var minDistance = math.MaxFloat64

	for _, person := range g.Persons {
		for _, pd := range person.Descriptors {
			if distance := Distance(pd, d); distance < minDistance {
				minDistance = distance
				minPerson = person
			}
		}
	}

	return minPerson, minDistance
}

// Match is Find limited to distances up to threshold.
func (g *Gallery) Match(d jdlib.Descriptor, threshold float64) (Person, float64, bool) {
	p, distance := g.Find(d)
	return p, distance, distance <= threshold
}
