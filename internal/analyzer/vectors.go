package analyzer

import (
	"bufio"
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strings"
)

// Feature is a named point of the feature space.
type Feature struct {
	Name   string    `json:"name"`
	Vector []float64 `json:"vector"`
}

// VectorStore holds feature vectors addressed by index and by name.
type VectorStore struct {
	features []Feature
	norms    []float64
	byName   map[string]int
	dim      int
}

// NewVectorStore indexes features. All vectors must have the same length.
func NewVectorStore(features []Feature) (*VectorStore, error) {
	vs := &VectorStore{
		features: features,
		norms:    make([]float64, len(features)),
		byName:   make(map[string]int, len(features)),
	}
	for i, f := range features {
		if i == 0 {
			vs.dim = len(f.Vector)
		} else if len(f.Vector) != vs.dim {
			return nil, fmt.Errorf("feature %q has dimension %d, want %d", f.Name, len(f.Vector), vs.dim)
		}
		vs.norms[i] = norm(f.Vector)
		vs.byName[strings.ToLower(f.Name)] = i
	}
	return vs, nil
}

// LoadVectors reads one JSON feature per line.
func LoadVectors(r io.Reader) (*VectorStore, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	var features []Feature
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var f Feature
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		features = append(features, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vectors: %w", err)
	}
	return NewVectorStore(features)
}

func LoadVectorsFile(path string) (*VectorStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vectors file: %w", err)
	}
	defer f.Close()
	return LoadVectors(f)
}

func (vs *VectorStore) Len() int {
	return len(vs.features)
}

// Lookup returns the index of a feature name.
func (vs *VectorStore) Lookup(name string) (int, bool) {
	i, ok := vs.byName[strings.ToLower(name)]
	return i, ok
}

func (vs *VectorStore) Name(i int) string {
	return vs.features[i].Name
}

// Sum adds up the vectors of the given features.
func (vs *VectorStore) Sum(indices []int) []float64 {
	out := make([]float64, vs.dim)
	for _, i := range indices {
		for d, v := range vs.features[i].Vector {
			out[d] += v
		}
	}
	return out
}

// Neighbour is a feature and its cosine similarity to a query vector.
type Neighbour struct {
	Index      int
	Similarity float64
}

// Nearest returns up to n features most similar to vec by cosine, skipping
// the excluded indices. Ties go by ascending index.
func (vs *VectorStore) Nearest(vec []float64, n int, exclude map[int]struct{}) []Neighbour {
	qn := norm(vec)
	if qn == 0 || n <= 0 {
		return nil
	}
	out := make([]Neighbour, 0, len(vs.features))
	for i, f := range vs.features {
		if _, skip := exclude[i]; skip || vs.norms[i] == 0 {
			continue
		}
		out = append(out, Neighbour{Index: i, Similarity: dot(vec, f.Vector) / (qn * vs.norms[i])})
	}
	slices.SortFunc(out, func(x, y Neighbour) int {
		if c := cmp.Compare(y.Similarity, x.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(x.Index, y.Index)
	})
	return out[:min(n, len(out))]
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}
