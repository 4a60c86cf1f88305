package search

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0},
		{"scaled", []float32{2, 0, 0}, []float32{5, 0, 0}, 1.0},
	}
	for _, c := range cases {
		got, err := CosineSimilarity(c.a, c.b)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", c.name, err)
			continue
		}
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("%s: CosineSimilarity = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestCosineSimilarityErrors(t *testing.T) {
	if _, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); err == nil {
		t.Error("dimension mismatch must error")
	}
	if _, err := CosineSimilarity(nil, nil); err == nil {
		t.Error("empty vectors must error")
	}
	if _, err := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); err == nil {
		t.Error("zero-magnitude vector must error")
	}
}
