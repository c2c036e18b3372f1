package probe

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/config"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/executor"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

func newAnomalyProbe(db *fakeDB) *Anomaly {
	p := NewAnomaly(db, config.Default().Anomaly)
	p.now = fixedClock
	return p
}

func amount(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func seededDB() *fakeDB {
	return &fakeDB{
		orders: []executor.OrderRow{
			{ID: "17", Amount: amount("-150.00"), Status: "pending"},
		},
		inventory: []executor.InventoryRow{
			{ID: "3", Name: "Widget", CurrentStock: -4, MaxThreshold: sql.NullInt64{Int64: 100, Valid: true}},
			{ID: "8", Name: "Gadget", CurrentStock: 150, MaxThreshold: sql.NullInt64{Int64: 100, Valid: true}},
			{ID: "9", Name: "Gizmo", CurrentStock: 2000, MaxThreshold: sql.NullInt64{Int64: 100, Valid: true}},
		},
		transactions: []executor.TransactionRow{
			{ID: "501", Type: "refund", Amount: decimal.RequireFromString("-5000.00"), CustomerID: "42"},
			{ID: "502", Type: "refund", Amount: decimal.RequireFromString("-250.50"), CustomerID: "43"},
		},
	}
}

func TestAnomalyNegativeOrderAmount(t *testing.T) {
	db := seededDB()
	report, err := newAnomalyProbe(db).Run(context.Background(), Params{"tables": "orders"})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) != 1 {
		t.Fatalf("findings = %+v, want exactly 1", report.Findings)
	}
	f := report.Findings[0]
	if f.Subject != "17" || f.Metric != -150 || f.Severity != model.SeverityCritical {
		t.Errorf("finding = %+v", f)
	}
	if f.Category != model.CategoryDataAnomaly || f.Details["table"] != "orders" {
		t.Errorf("finding = %+v", f)
	}
	if db.calls != 1 {
		t.Errorf("scope orders issued %d queries", db.calls)
	}
}

func TestAnomalyUnknownStatus(t *testing.T) {
	db := &fakeDB{orders: []executor.OrderRow{
		{ID: "20", Amount: amount("10.00"), Status: "lost"},
		{ID: "21", Amount: amount("10.00"), Status: "Shipped"},
		{ID: "22", Amount: amount("-1.00"), Status: "lost"},
	}}
	report, err := newAnomalyProbe(db).Run(context.Background(), Params{"tables": "orders"})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) != 2 {
		t.Fatalf("findings = %+v, want 2", report.Findings)
	}
	// The negative amount wins over the status violation on the same row.
	if f := report.Findings[0]; f.Subject != "22" || f.Severity != model.SeverityCritical || f.Details["status_violation"] != "true" {
		t.Errorf("first = %+v", f)
	}
	if f := report.Findings[1]; f.Subject != "20" || f.Severity != model.SeverityWarning || f.Metric != 1 {
		t.Errorf("second = %+v", f)
	}
}

func TestAnomalyInventoryAndTransactions(t *testing.T) {
	db := seededDB()
	report, err := newAnomalyProbe(db).Run(context.Background(), Params{"tables": "inventory"})
	if err != nil {
		t.Fatal(err)
	}
	sev := map[string]model.Severity{}
	for _, f := range report.Findings {
		sev[f.Subject] = f.Severity
	}
	want := map[string]model.Severity{"3": model.SeverityCritical, "8": model.SeverityWarning, "9": model.SeverityCritical}
	if !reflect.DeepEqual(sev, want) {
		t.Errorf("inventory severities = %v, want %v", sev, want)
	}

	db.inventory = []executor.InventoryRow{
		{ID: "12", Name: "Sprocket", CurrentStock: 5, MaxThreshold: sql.NullInt64{Int64: -1, Valid: true}},
		{ID: "13", Name: "Flange", CurrentStock: 1, MaxThreshold: sql.NullInt64{Int64: 0, Valid: true}},
	}
	report, err = newAnomalyProbe(db).Run(context.Background(), Params{"tables": "inventory"})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) != 2 {
		t.Fatalf("non-positive max findings = %+v", report.Findings)
	}
	for _, f := range report.Findings {
		if f.Severity != model.SeverityCritical || f.Details["max_threshold"] == "" {
			t.Errorf("non-positive max finding = %+v", f)
		}
	}

	report, err = newAnomalyProbe(db).Run(context.Background(), Params{"tables": "transactions"})
	if err != nil {
		t.Fatal(err)
	}
	if !db.txBound.Equal(decimal.NewFromInt(-100)) {
		t.Errorf("bound = %s", db.txBound)
	}
	if len(report.Findings) != 2 {
		t.Fatalf("findings = %+v", report.Findings)
	}
	if f := report.Findings[0]; f.Subject != "501" || f.Severity != model.SeverityCritical || f.Threshold != -1000 {
		t.Errorf("first = %+v", f)
	}
	if f := report.Findings[1]; f.Subject != "502" || f.Severity != model.SeverityWarning || f.Threshold != -100 {
		t.Errorf("second = %+v", f)
	}
}

func TestAnomalyAllScopeSortsAcrossTables(t *testing.T) {
	db := seededDB()
	report, err := newAnomalyProbe(db).Run(context.Background(), Params{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Parameters["tables"] != "all" {
		t.Errorf("tables = %v", report.Parameters["tables"])
	}
	if len(report.Findings) != 6 {
		t.Fatalf("findings = %d, want 6", len(report.Findings))
	}
	for i := 1; i < len(report.Findings); i++ {
		if report.Findings[i-1].Severity.Rank() < report.Findings[i].Severity.Rank() {
			t.Fatalf("findings not sorted by severity at %d", i)
		}
	}
	if report.Summary.Critical != 4 || report.Summary.Warning != 2 {
		t.Errorf("summary = %+v", report.Summary)
	}
}

func TestAnomalyInvalidScope(t *testing.T) {
	db := seededDB()
	report, err := newAnomalyProbe(db).Run(context.Background(), Params{"tables": "bogus"})
	if !errors.Is(err, model.ErrInvalidScope) {
		t.Fatalf("err = %v, want InvalidScopeError", err)
	}
	if report != nil {
		t.Error("no report may be returned with an invalid scope")
	}
	if db.calls != 0 {
		t.Error("database touched before scope validation")
	}
}

func TestAnomalyIdempotent(t *testing.T) {
	db := seededDB()
	p := newAnomalyProbe(db)
	first, err := p.Run(context.Background(), Params{"tables": "all"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Run(context.Background(), Params{"tables": "all"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Findings, second.Findings) {
		t.Error("findings differ between identical runs")
	}
}
