// Package dym proposes "did you mean" rewrites of a query. Vocabulary
// entries are selected by the character trigrams they share with the query
// words, and their words become proposals when they lie within a small
// prefix edit distance of a query word.
package dym

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

const (
	ngramSize   = 3
	startMarker = '^'
)

type entry struct {
	name   string
	ngrams int
}

// Vocabulary is an n-gram index over known words and phrases.
type Vocabulary struct {
	mu      sync.RWMutex
	entries []entry
	grams   map[string]*roaring.Bitmap
	seen    map[string]struct{}
}

func NewVocabulary() *Vocabulary {
	return &Vocabulary{
		grams: make(map[string]*roaring.Bitmap),
		seen:  make(map[string]struct{}),
	}
}

// Add indexes a word or phrase. Blank and repeated entries are ignored.
func (v *Vocabulary) Add(name string) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return
	}
	key := strings.ToLower(name)

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, dup := v.seen[key]; dup {
		return
	}
	v.seen[key] = struct{}{}

	id := uint32(len(v.entries))
	var count int
	for _, word := range strings.Fields(key) {
		for _, g := range ngrams(word) {
			bm, ok := v.grams[g]
			if !ok {
				bm = roaring.New()
				v.grams[g] = bm
			}
			bm.Add(id)
			count++
		}
	}
	v.entries = append(v.entries, entry{name: name, ngrams: count})
}

func (v *Vocabulary) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// LoadVocabulary reads one entry per line.
func LoadVocabulary(r io.Reader) (*Vocabulary, error) {
	v := NewVocabulary()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		v.Add(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vocabulary: %w", err)
	}
	return v, nil
}

func LoadVocabularyFile(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vocabulary file: %w", err)
	}
	defer f.Close()
	return LoadVocabulary(f)
}

// ngrams returns the trigrams of a lower-case word prefixed with the start
// marker. Words too short for a trigram yield themselves with the marker.
func ngrams(word string) []string {
	runes := append([]rune{startMarker}, []rune(word)...)
	if len(runes) <= ngramSize {
		return []string{string(runes)}
	}
	out := make([]string, 0, len(runes)-ngramSize+1)
	for i := 0; i+ngramSize <= len(runes); i++ {
		out = append(out, string(runes[i:i+ngramSize]))
	}
	return out
}
