// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

// Package vectormath holds the numerical core of Re-ID scoring as pure
// functions, isolated from storage and inference so they can be verified
// directly.
package vectormath

import "math"

// Norm is the L2 norm.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. The zero vector is returned
// unchanged; callers treat it as unmatchable rather than erroring.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// Dot is the inner product over the shared prefix of a and b.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Cosine is cosine similarity in [-1, 1]; zero-norm inputs score 0.
func Cosine(a, b []float32) float64 {
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}

// Mean averages the vectors element-wise over their shortest length and
// re-normalises the result. Used when rebuilding a profile embedding from a
// sample of its sightings. Returns nil for an empty input.
func Mean(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	n := len(vecs[0])
	for _, v := range vecs {
		if len(v) < n {
			n = len(v)
		}
	}
	sum := make([]float64, n)
	for _, v := range vecs {
		for i := 0; i < n; i++ {
			sum[i] += float64(v[i])
		}
	}
	out := make([]float32, n)
	for i := range sum {
		out[i] = float32(sum[i] / float64(len(vecs)))
	}
	return Normalize(out)
}

// EMA blends a profile embedding towards a query and re-normalises:
// normalize((1-alpha)*old + alpha*query). Alpha near 0 freezes the profile,
// alpha 1 replaces it.
func EMA(old, query []float32, alpha float64) []float32 {
	n := len(old)
	if len(query) < n {
		n = len(query)
	}
	blended := make([]float32, n)
	for i := 0; i < n; i++ {
		blended[i] = float32((1-alpha)*float64(old[i]) + alpha*float64(query[i]))
	}
	return Normalize(blended)
}

// EnsembleScore combines per-extractor cosine similarities with the given
// weights. queries[i] pairs with candidates[i]; a missing candidate vector
// drops its term and the remaining weights are renormalised, so profiles
// created before an auxiliary extractor was configured stay comparable.
func EnsembleScore(queries, candidates [][]float32, weights []float64) float64 {
	var score, weightSum float64
	for i, w := range weights {
		if i >= len(queries) || i >= len(candidates) {
			break
		}
		if len(queries[i]) == 0 || len(candidates[i]) == 0 {
			continue
		}
		score += w * Cosine(queries[i], candidates[i])
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return score / weightSum
}
