package model

// ComputeHealthScore computes a 0-100 health score from findings.
// 100 = nothing found, 0 = critical.
func ComputeHealthScore(findings []Finding) int {
	score := 100

	// Deduct per finding; each category deducts at most categoryWeight.
	deducted := make(map[Category]int)
	for _, f := range findings {
		var d int
		switch f.Severity {
		case SeverityCritical:
			d = 10
		case SeverityWarning:
			d = 5
		case SeverityInfo:
			d = 1
		}
		if deducted[f.Category]+d > categoryWeight(f.Category) {
			d = categoryWeight(f.Category) - deducted[f.Category]
		}
		deducted[f.Category] += d
		score -= d
	}

	// Clamp to [0, 100]
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// categoryWeight caps how many points one category can deduct.
func categoryWeight(c Category) int {
	switch c {
	case CategoryDeadlock:
		return 40
	case CategoryStorageGrowth, CategoryBatchFailure:
		return 25
	case CategorySlowQuery, CategoryDataAnomaly:
		return 20
	default:
		return 10
	}
}
