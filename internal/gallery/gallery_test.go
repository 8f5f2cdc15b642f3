package gallery

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dimuls/jdlib"
)

func writeTree(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		p := filepath.Join(dir, f)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(f), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func descriptor(v float32) *jdlib.Descriptor {
	var d jdlib.Descriptor
	d[0] = v
	return &d
}

// fakeEmbed maps file names to the first component of a single descriptor.
// Names containing "group" give two faces, names ending in .txt are
// unreadable.
func fakeEmbed(values map[string]float32) EmbedFunc {
	return func(path string) ([]jdlib.FaceDescriptor, error) {
		name := filepath.Base(path)
		switch {
		case strings.HasSuffix(name, ".txt"):
			return nil, ErrUnreadable
		case strings.Contains(name, "group"):
			return []jdlib.FaceDescriptor{{Embedding: descriptor(0)}, {Embedding: descriptor(1)}}, nil
		}
		return []jdlib.FaceDescriptor{{Embedding: descriptor(values[name])}}, nil
	}
}

func TestLoad(t *testing.T) {
	dir := writeTree(t,
		"alice/1.jpg",
		"alice/2.jpg",
		"alice/notes.txt",
		"bob/1.png",
		"readme.md",
	)

	g, err := Load(dir, fakeEmbed(map[string]float32{"1.jpg": 0.1, "2.jpg": 0.2, "1.png": 5}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(g.Persons) != 2 {
		t.Fatalf("Expected 2 persons, got %d", len(g.Persons))
	}
	if g.Persons[0].Name != "alice" || len(g.Persons[0].Descriptors) != 2 {
		t.Errorf("Unexpected first person: %+v", g.Persons[0])
	}
	if g.Persons[1].Name != "bob" || len(g.Persons[1].Descriptors) != 1 {
		t.Errorf("Unexpected second person: %+v", g.Persons[1])
	}
}

func TestLoadRejectsGroupPhotos(t *testing.T) {
	dir := writeTree(t, "alice/group.jpg")

	_, err := Load(dir, fakeEmbed(nil))
	if !errors.Is(err, ErrNotOneFace) {
		t.Fatalf("Expected ErrNotOneFace, got %v", err)
	}
}

func TestBuildReportsProgress(t *testing.T) {
	dir := writeTree(t, "alice/1.jpg", "alice/skip.txt", "bob/1.jpg")
	photos, err := List(dir)
	if err != nil {
		t.Fatal(err)
	}

	var seen int
	if _, err := Build(photos, fakeEmbed(nil), func(Photo) { seen++ }); err != nil {
		t.Fatal(err)
	}
	if seen != len(photos) || seen != 3 {
		t.Errorf("onPhoto called %d times for %d photos", seen, len(photos))
	}
}

func TestFindAndMatch(t *testing.T) {
	g := &Gallery{Persons: []Person{
		{Name: "alice", Descriptors: []jdlib.Descriptor{*descriptor(0), *descriptor(0.3)}},
		{Name: "bob", Descriptors: []jdlib.Descriptor{*descriptor(2)}},
	}}

	tests := []struct {
		name      string
		query     float32
		want      string
		distance  float64
		threshold float64
		matched   bool
	}{
		{"exact", 0, "alice", 0, DefaultThreshold, true},
		{"second descriptor", 0.4, "alice", 0.1, DefaultThreshold, true},
		{"closer to bob", 1.9, "bob", 0.1, DefaultThreshold, true},
		{"too far", 1.0, "alice", 0.7, DefaultThreshold, false},
		{"on the threshold", 0, "alice", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, distance, ok := g.Match(*descriptor(tt.query), tt.threshold)
			if p.Name != tt.want {
				t.Errorf("person = %q, want %q", p.Name, tt.want)
			}
			if math.Abs(distance-tt.distance) > 1e-6 {
				t.Errorf("distance = %v, want %v", distance, tt.distance)
			}
			if ok != tt.matched {
				t.Errorf("matched = %v, want %v", ok, tt.matched)
			}
		})
	}
}

func TestFindEmptyGallery(t *testing.T) {
	p, distance := (&Gallery{}).Find(jdlib.Descriptor{})
	if p.Name != "" || distance != math.MaxFloat64 {
		t.Errorf("Expected no person, got %q at %v", p.Name, distance)
	}
}
