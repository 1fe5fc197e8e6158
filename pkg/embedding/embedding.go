// Package embedding provides the hash-based embedder and the JSON-file
// vector store that overlays the memory tiers. No model is loaded: vectors
// are deterministic functions of the text, good enough for similarity
// ranking between items embedded the same way.
package embedding

import (
	"crypto/sha512"
	"errors"
	"math"
)

// Vector is a dense embedding.
type Vector []float64

// Batch is the result of one embedding generation call.
type Batch struct {
	Embeddings []Vector `json:"embeddings"`
	Count      int      `json:"count"`
	Dimensions int      `json:"dimensions"`
	Mode       string   `json:"mode"`
}

// HashVector derives a pseudo-embedding from the SHA-512 of text: one
// dimension per digest byte, scaled to [0, 1]. Identical texts always embed
// identically.
func HashVector(text string) Vector {
	digest := sha512.Sum512([]byte(text))
	v := make(Vector, len(digest))
	for i, b := range digest {
		v[i] = float64(b) / 255.0
	}
	return v
}

// Generate embeds each text with the hash fallback.
func Generate(texts []string) (*Batch, error) {
	if len(texts) == 0 {
		return nil, errors.New("No texts provided")
	}

	embeddings := make([]Vector, len(texts))
	for i, text := range texts {
		embeddings[i] = HashVector(text)
	}

	return &Batch{
		Embeddings: embeddings,
		Count:      len(embeddings),
		Dimensions: len(embeddings[0]),
		Mode:       "local",
	}, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either norm is
// zero. The dot product runs over the shorter prefix; each norm covers its
// full vector.
func Cosine(a, b Vector) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}

	var normA, normB float64
	for _, x := range a {
		normA += x * x
	}
	for _, x := range b {
		normB += x * x
	}

	norm := math.Sqrt(normA) * math.Sqrt(normB)
	if norm == 0 {
		return 0
	}
	return dot / norm
}

func roundSimilarity(s float64) float64 {
	return math.Round(s*10000) / 10000
}
