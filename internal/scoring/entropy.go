package scoring

import "math"

// ShannonEntropy returns the entropy in bits of the rune distribution of s.
// Terms are summed in first-occurrence order so the result is bit-for-bit
// stable across calls.
func ShannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	var order []rune
	total := 0
	for _, r := range s {
		if counts[r] == 0 {
			order = append(order, r)
		}
		counts[r]++
		total++
	}
	var h float64
	n := float64(total)
	for _, r := range order {
		p := float64(counts[r]) / n
		h -= p * math.Log2(p)
	}
	return h
}

// entropyPoints converts entropy to score points, rounding half to even.
func entropyPoints(s string) int {
	return int(math.RoundToEven(ShannonEntropy(s) * entropyWeight))
}
