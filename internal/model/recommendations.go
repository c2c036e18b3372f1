package model

import (
	"regexp"
	"strings"
)

var (
	whereColumnRe  = regexp.MustCompile(`(?i)\bwhere\s+(?:[a-z_][a-z0-9_]*\.)?([a-z_][a-z0-9_]*)\s*(?:=|<|>|in\b|like\b|between\b)`)
	selectStarRe   = regexp.MustCompile(`(?i)\bselect\s+(?:distinct\s+)?(?:[a-z_][a-z0-9_]*\.)?\*`)
	leadingLikeRe  = regexp.MustCompile(`(?i)\b(?:i?like)\s+'%`)
	orderByLimitRe = regexp.MustCompile(`(?i)\border\s+by\b[^;]*\boffset\s+\d{4,}`)
)

// SlowQueryRecommendations returns remediation hints for a slow statement,
// derived from its text alone.
func SlowQueryRecommendations(query string) []string {
	var recs []string
	lower := strings.ToLower(query)

	if m := whereColumnRe.FindStringSubmatch(query); m != nil {
		recs = append(recs, "Add an index on the filtered column "+strings.ToLower(m[1]))
	}
	if strings.Contains(lower, " join ") {
		recs = append(recs, "Review JOIN strategy and make sure join keys are indexed")
	}
	if selectStarRe.MatchString(query) {
		recs = append(recs, "Select specific columns instead of *")
	}
	if leadingLikeRe.MatchString(query) {
		recs = append(recs, "Avoid leading-wildcard LIKE on large tables; consider a trigram index")
	}
	if orderByLimitRe.MatchString(query) {
		recs = append(recs, "Replace large OFFSET pagination with keyset pagination")
	}
	if len(recs) == 0 {
		recs = append(recs, "Consider adding appropriate indexes", "Review the query execution plan with EXPLAIN")
	}
	return recs
}

// StorageRecommendations returns hints for a database at usagePct of its
// configured capacity.
func StorageRecommendations(usagePct float64) []string {
	var recs []string
	if usagePct > 70 {
		recs = append(recs, "Archive old data to reduce database size")
	}
	if usagePct > 80 {
		recs = append(recs, "Implement data retention policies")
	}
	if usagePct > 90 {
		recs = append(recs, "Increase storage allocation before the volume fills")
	}
	if len(recs) == 0 {
		recs = append(recs, "Monitor growth trends")
	}
	return recs
}

// Recommendation texts for the remaining categories.
const (
	DeadlockRecommendation     = "Review blocking queries and consider terminating long-running transactions"
	OrderAnomalyRecommendation = "Investigate data entry processes and add a CHECK constraint on orders"
	StockAnomalyRecommendation = "Reconcile stock counts and review inventory update jobs"
	TxAnomalyRecommendation    = "Review large reversals for fraud or erroneous adjustments"
	BatchRecommendation        = "Review batch logs, retry transient failures, validate input before loading"
)
