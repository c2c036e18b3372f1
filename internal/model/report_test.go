package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewReportEmptyFindingsIsArray(t *testing.T) {
	r := NewReport("check_deadlock", time.Now(), nil, nil)
	if r.Findings == nil {
		t.Fatal("findings must be an empty slice, not nil")
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"findings":[]`) {
		t.Errorf("expected findings:[] in JSON, got %s", data)
	}
	if r.Summary.Total != 0 || r.Summary.HealthScore != 100 {
		t.Errorf("summary = %+v, want zero findings and health 100", r.Summary)
	}
}

func TestNewReportOrdering(t *testing.T) {
	findings := []Finding{
		{Category: CategorySlowQuery, Severity: SeverityWarning, Subject: "b", Metric: 1200},
		{Category: CategorySlowQuery, Severity: SeverityCritical, Subject: "c", Metric: 2100},
		{Category: CategorySlowQuery, Severity: SeverityWarning, Subject: "a", Metric: 1900},
		{Category: CategorySlowQuery, Severity: SeverityCritical, Subject: "d", Metric: 9000},
		{Category: CategorySlowQuery, Severity: SeverityWarning, Subject: "e", Metric: 1200},
	}

	r := NewReport("check_query_response_time", time.Now(), nil, findings)

	var got []string
	for _, f := range r.Findings {
		got = append(got, f.Subject)
	}
	want := "d,c,a,b,e"
	if strings.Join(got, ",") != want {
		t.Errorf("order = %s, want %s", strings.Join(got, ","), want)
	}

	// Input slice must not be reordered.
	if findings[0].Subject != "b" {
		t.Error("NewReport mutated the caller's slice")
	}
}

func TestNewOrderedReportKeepsOrder(t *testing.T) {
	findings := []Finding{
		{Severity: SeverityWarning, Subject: "newest", Metric: 0.001},
		{Severity: SeverityCritical, Subject: "older", Metric: 0.5},
	}
	r := NewOrderedReport("check_batch_data", time.Now(), nil, findings)
	if r.Findings[0].Subject != "newest" {
		t.Errorf("first = %q, want newest", r.Findings[0].Subject)
	}
	if r.Summary.Critical != 1 || r.Summary.Warning != 1 {
		t.Errorf("summary = %+v", r.Summary)
	}
}

func TestSummarizeCounts(t *testing.T) {
	s := Summarize([]Finding{
		{Category: CategoryDeadlock, Severity: SeverityCritical},
		{Category: CategoryDataAnomaly, Severity: SeverityWarning},
		{Category: CategoryDataAnomaly, Severity: SeverityWarning},
		{Category: CategorySlowQuery, Severity: SeverityInfo},
	})
	if s.Total != 4 || s.Critical != 1 || s.Warning != 2 || s.Info != 1 {
		t.Errorf("summary = %+v", s)
	}
	// 100 - 10 - 5 - 5 - 1
	if s.HealthScore != 79 {
		t.Errorf("health = %d, want 79", s.HealthScore)
	}
}

func TestMergeSortsAcrossCategories(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := NewReport("check_abnormal_data", now, nil, []Finding{
		{Category: CategoryDataAnomaly, Severity: SeverityWarning, Subject: "17", Metric: 20000},
	})
	b := NewReport("check_deadlock", now, nil, []Finding{
		{Category: CategoryDeadlock, Severity: SeverityCritical, Subject: "4242", Metric: 1500},
	})
	statuses := []ProbeStatus{
		{Probe: "check_abnormal_data", OK: true, Findings: 1},
		{Probe: "check_deadlock", OK: true, Findings: 1},
		{Probe: "check_file_size", OK: false, ErrorKind: KindConnection, Error: "down"},
	}

	merged := Merge("check_all", now, []*Report{a, nil, b}, statuses)

	if len(merged.Findings) != 2 {
		t.Fatalf("findings = %d, want 2", len(merged.Findings))
	}
	if merged.Findings[0].Category != CategoryDeadlock {
		t.Errorf("critical deadlock must come first, got %s", merged.Findings[0].Category)
	}
	if len(merged.Probes) != 3 || merged.Probes[2].ErrorKind != KindConnection {
		t.Errorf("probes = %+v", merged.Probes)
	}
	if !merged.ExecutedAt.Equal(now) {
		t.Errorf("executed_at = %v, want %v", merged.ExecutedAt, now)
	}
}

func TestHealthScoreCategoryCap(t *testing.T) {
	var findings []Finding
	for i := 0; i < 50; i++ {
		findings = append(findings, Finding{Category: CategoryDataAnomaly, Severity: SeverityCritical})
	}
	if got := ComputeHealthScore(findings); got != 80 {
		t.Errorf("health = %d, want 80 (data_anomaly capped at 20)", got)
	}
}

func TestSeverityRank(t *testing.T) {
	if !(SeverityCritical.Rank() > SeverityWarning.Rank() && SeverityWarning.Rank() > SeverityInfo.Rank()) {
		t.Error("expected critical > warning > info")
	}
	if Severity("bogus").Rank() != 0 {
		t.Error("unknown severity must rank lowest")
	}
}
