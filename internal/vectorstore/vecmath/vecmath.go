// Package vecmath holds the similarity and encoding helpers shared by the
// local vector store backends.
package vecmath

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"ragmem/internal/domain"
)

// Cosine returns the cosine similarity of a and b. A zero vector scores 0.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank scores docs against query and returns the n best, most similar first.
// Equal scores keep the order of docs.
func Rank(docs []domain.StoredDocument, query []float32, n int) []domain.Match {
	matches := make([]domain.Match, len(docs))
	for i, d := range docs {
		matches[i] = domain.Match{Document: d, Score: Cosine(d.Vector, query)}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if n >= 0 && n < len(matches) {
		matches = matches[:n]
	}
	return matches
}

// EncodeVector encodes vec as little-endian IEEE 754 float32 values
// without a length prefix.
func EncodeVector(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeVector reverses EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vecmath: invalid vector blob length %d (not multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
