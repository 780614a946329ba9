// Package simhash computes 64-bit SimHash fingerprints. The capture agent
// uses them to tell whether the page settled after a scroll and whether a
// scroll revealed anything new.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// Fingerprint hashes the whitespace-separated words of text.
func Fingerprint(text string) uint64 {
	return Tokens(strings.Fields(text))
}

// Tokens hashes each token with FNV-64a and folds the hashes into one
// fingerprint by per-bit majority vote. No tokens yields 0.
func Tokens(tokens []string) uint64 {
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int
	h := fnv.New64a()
	for _, tok := range tokens {
		h.Reset()
		h.Write([]byte(tok))
		sum := h.Sum64()

		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether a and b differ in at most threshold bits.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}
