package severity

// Bucket thresholds, highest first.
const (
	Critical = 100
	High     = 90
	Medium   = 80
	Low      = 65
	None     = 0
)

// Buckets lists every bucket value in descending order.
var Buckets = []int{Critical, High, Medium, Low, None}

// Alert labels printed for scores that reach an alert bucket.
const (
	LabelSuspicious = "Suspicious"
	LabelLikely     = "Likely"
	LabelPotential  = "Potential"
)

// Bucket returns the highest threshold score meets or exceeds, or None.
func Bucket(score int) int {
	switch {
	case score >= Critical:
		return Critical
	case score >= High:
		return High
	case score >= Medium:
		return Medium
	case score >= Low:
		return Low
	default:
		return None
	}
}

// Label returns the alert label for a bucket and whether it alerts at all.
func Label(bucket int) (string, bool) {
	switch Bucket(bucket) {
	case Critical, High:
		return LabelSuspicious, true
	case Medium:
		return LabelLikely, true
	case Low:
		return LabelPotential, true
	default:
		return "", false
	}
}

// ShouldAlert reports whether score is high enough to surface an alert.
func ShouldAlert(score int) bool {
	return score >= Low
}
