package probe

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/config"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/executor"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

const paramTables = "tables"

// AnomalyReader returns domain rows that violate business rules.
type AnomalyReader interface {
	OrderViolations(ctx context.Context, statuses []string, limit int) ([]executor.OrderRow, error)
	InventoryViolations(ctx context.Context, limit int) ([]executor.InventoryRow, error)
	TransactionViolations(ctx context.Context, bound decimal.Decimal, limit int) ([]executor.TransactionRow, error)
}

// Anomaly is check_abnormal_data.
type Anomaly struct {
	db  AnomalyReader
	cfg config.AnomalyConfig
	now func() time.Time
}

// NewAnomaly creates the anomaly scanner.
func NewAnomaly(db AnomalyReader, cfg config.AnomalyConfig) *Anomaly {
	return &Anomaly{db: db, cfg: cfg, now: time.Now}
}

func (a *Anomaly) Name() string { return NameAbnormalData }

var (
	// negativeThreshold flags any value below zero as critical.
	negativeThreshold = model.Threshold{Warning: 0, Critical: 0, Direction: model.Below}
	// violationThreshold flags a single rule violation as a warning.
	violationThreshold = model.Threshold{Warning: 1, Critical: math.Inf(1), Direction: model.Above, Inclusive: true}
)

func (a *Anomaly) Run(ctx context.Context, params Params) (*model.Report, error) {
	ctx, echo, err := prepare(ctx, params, paramTables)
	if err != nil {
		return nil, err
	}
	raw, _, err := params.String(paramTables)
	if err != nil {
		return nil, err
	}
	scope, err := ParseScope(raw)
	if err != nil {
		return nil, err
	}
	echo[paramTables] = scope.String()

	var findings []model.Finding
	if scope.Includes(ScopeOrders) {
		rows, err := a.db.OrderViolations(ctx, a.cfg.OrderStatuses, a.cfg.MaxRows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, a.orderFindings(rows)...)
	}
	if scope.Includes(ScopeInventory) {
		rows, err := a.db.InventoryViolations(ctx, a.cfg.MaxRows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, inventoryFindings(rows)...)
	}
	if scope.Includes(ScopeTransactions) {
		rows, err := a.db.TransactionViolations(ctx, decimal.NewFromFloat(a.cfg.LargeNegativeAmount), a.cfg.MaxRows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, a.transactionFindings(rows)...)
	}
	return model.NewReport(a.Name(), a.now(), echo, findings), nil
}

func (a *Anomaly) knownStatus(status string) bool {
	for _, s := range a.cfg.OrderStatuses {
		if strings.EqualFold(s, status) {
			return true
		}
	}
	return false
}

func (a *Anomaly) orderFindings(rows []executor.OrderRow) []model.Finding {
	var out []model.Finding
	for _, r := range rows {
		badStatus := !a.knownStatus(r.Status)
		details := map[string]string{"table": "orders", "status": r.Status}
		if r.Amount.Valid {
			details["total_amount"] = r.Amount.Decimal.StringFixed(2)
		}

		var (
			f  model.Finding
			ok bool
		)
		if r.Amount.Valid && r.Amount.Decimal.IsNegative() {
			msg := fmt.Sprintf("Order %s has negative total_amount %s", r.ID, r.Amount.Decimal.StringFixed(2))
			f, ok = model.NewFinding(model.CategoryDataAnomaly, r.ID, r.Amount.Decimal.InexactFloat64(), model.UnitAmount, negativeThreshold, msg)
			if badStatus {
				details["status_violation"] = "true"
			}
		} else if badStatus {
			msg := fmt.Sprintf("Order %s has status %q outside the known statuses", r.ID, r.Status)
			f, ok = model.NewFinding(model.CategoryDataAnomaly, r.ID, 1, model.UnitCount, violationThreshold, msg)
		}
		if !ok {
			continue
		}
		f.Recommendation = model.OrderAnomalyRecommendation
		f.Details = details
		out = append(out, f)
	}
	return out
}

func inventoryFindings(rows []executor.InventoryRow) []model.Finding {
	var out []model.Finding
	for _, r := range rows {
		stock := float64(r.CurrentStock)
		details := map[string]string{
			"table":         "inventory",
			"product_name":  r.Name,
			"current_stock": strconv.FormatInt(r.CurrentStock, 10),
		}

		var (
			f  model.Finding
			ok bool
		)
		switch {
		case r.CurrentStock < 0:
			msg := fmt.Sprintf("Product %s (%s) has negative stock %d", r.ID, r.Name, r.CurrentStock)
			f, ok = model.NewFinding(model.CategoryDataAnomaly, r.ID, stock, model.UnitCount, negativeThreshold, msg)
		case r.MaxThreshold.Valid:
			maxStock := float64(r.MaxThreshold.Int64)
			details["max_threshold"] = strconv.FormatInt(r.MaxThreshold.Int64, 10)
			msg := fmt.Sprintf("Product %s (%s) has stock %d above its max threshold %d", r.ID, r.Name, r.CurrentStock, r.MaxThreshold.Int64)
			overstock := model.Threshold{Warning: maxStock, Critical: 10 * maxStock, Direction: model.Above}
			if maxStock <= 0 {
				// A non-positive max is itself bad data; any stock over it is critical.
				overstock.Critical = maxStock
			}
			f, ok = model.NewFinding(model.CategoryDataAnomaly, r.ID, stock, model.UnitCount, overstock, msg)
		}
		if !ok {
			continue
		}
		f.Recommendation = model.StockAnomalyRecommendation
		f.Details = details
		out = append(out, f)
	}
	return out
}

func (a *Anomaly) transactionFindings(rows []executor.TransactionRow) []model.Finding {
	bound := a.cfg.LargeNegativeAmount
	t := model.Threshold{Warning: bound, Critical: bound * a.cfg.CriticalMultiplier, Direction: model.Below}

	var out []model.Finding
	for _, r := range rows {
		amount := r.Amount.StringFixed(2)
		msg := fmt.Sprintf("Transaction %s (%s) has amount %s below %.2f", r.ID, r.Type, amount, bound)
		f, ok := model.NewFinding(model.CategoryDataAnomaly, r.ID, r.Amount.InexactFloat64(), model.UnitAmount, t, msg)
		if !ok {
			continue
		}
		f.Recommendation = model.TxAnomalyRecommendation
		f.Details = map[string]string{
			"table":            "transaction_log",
			"transaction_type": r.Type,
			"amount":           amount,
			"customer_id":      r.CustomerID,
		}
		if r.CreatedAt.Valid {
			f.Details["created_at"] = r.CreatedAt.Time.UTC().Format(time.RFC3339)
		}
		out = append(out, f)
	}
	return out
}
