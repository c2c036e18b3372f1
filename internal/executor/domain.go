package executor

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// SlowQueryRecord is a persisted query_stats measurement.
type SlowQueryRecord struct {
	Query       string
	ExecutionMs float64
	Rows        int64
	ExecutedAt  time.Time
}

// OrderRow is an orders row that failed a business rule in SQL.
type OrderRow struct {
	ID     string
	Amount decimal.NullDecimal
	Status string
}

// InventoryRow is an inventory row outside its stock bounds.
type InventoryRow struct {
	ID           string
	Name         string
	CurrentStock int64
	MaxThreshold sql.NullInt64
}

// TransactionRow is a transaction_log entry below the fraud bound.
type TransactionRow struct {
	ID         string
	Type       string
	Amount     decimal.Decimal
	CustomerID string
	CreatedAt  sql.NullTime
}

// BatchJob is a failing batch_jobs row with its batch_errors rolled up.
type BatchJob struct {
	ID          string
	JobType     string
	Status      string
	Total       sql.NullInt64
	Processed   sql.NullInt64
	Failed      sql.NullInt64
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
	ErrorTypes  map[string]int
	Samples     []string
}

// LastActivity is completed_at, or started_at for unfinished jobs.
func (b BatchJob) LastActivity() time.Time {
	if b.CompletedAt.Valid {
		return b.CompletedAt.Time
	}
	return b.StartedAt.Time
}

const slowQueryRecordsQuery = `
SELECT query_text, execution_time_ms, COALESCE(rows_affected, 0), executed_at
FROM query_stats
WHERE executed_at >= now() - make_interval(secs => $1)
  AND execution_time_ms > $2
ORDER BY execution_time_ms DESC, executed_at DESC, query_text
LIMIT $3`

const orderViolationsQuery = `
SELECT order_id::text, total_amount, COALESCE(status, '')
FROM orders
WHERE total_amount < 0
   OR status IS NULL
   OR lower(status) <> ALL($1)
ORDER BY order_id
LIMIT $2`

const inventoryViolationsQuery = `
SELECT product_id::text, COALESCE(product_name, ''), current_stock, max_threshold
FROM inventory
WHERE current_stock < 0
   OR current_stock > max_threshold
ORDER BY product_id
LIMIT $1`

const transactionViolationsQuery = `
SELECT log_id::text, COALESCE(transaction_type, ''), amount, COALESCE(customer_id::text, ''), created_at
FROM transaction_log
WHERE amount < $1
ORDER BY amount, log_id
LIMIT $2`

const failedBatchesQuery = `
SELECT batch_id::text, COALESCE(job_type, ''), COALESCE(status, ''),
       total_records, processed_records, failed_records, started_at, completed_at
FROM batch_jobs
WHERE COALESCE(completed_at, started_at) >= now() - make_interval(hours => $1)
  AND (COALESCE(failed_records, 0) > 0 OR lower(status) = ANY($2))
ORDER BY COALESCE(completed_at, started_at) DESC, batch_id DESC
LIMIT $3`

const batchErrorsQuery = `
SELECT batch_id::text, COALESCE(error_type, 'unknown'), COALESCE(error_message, '')
FROM batch_errors
WHERE batch_id::text = ANY($1)
ORDER BY batch_id, error_type, error_message`

// SlowQueryRecords returns query_stats rows newer than lookback whose
// execution time exceeds minMs, slowest first.
func (e *Executor) SlowQueryRecords(ctx context.Context, lookback time.Duration, minMs float64, limit int) ([]SlowQueryRecord, error) {
	var out []SlowQueryRecord
	err := e.readTx(ctx, sql.LevelDefault, "query_stats", func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, slowQueryRecordsQuery, lookback.Seconds(), minMs, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r SlowQueryRecord
			if err := rows.Scan(&r.Query, &r.ExecutionMs, &r.Rows, &r.ExecutedAt); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OrderViolations returns orders with a negative total or a status outside
// statuses (compared case-insensitively).
func (e *Executor) OrderViolations(ctx context.Context, statuses []string, limit int) ([]OrderRow, error) {
	lowered := make([]string, len(statuses))
	for i, s := range statuses {
		lowered[i] = strings.ToLower(s)
	}

	var out []OrderRow
	err := e.readTx(ctx, sql.LevelDefault, "orders", func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, orderViolationsQuery, pq.Array(lowered), limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r OrderRow
			if err := rows.Scan(&r.ID, &r.Amount, &r.Status); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InventoryViolations returns products with negative stock or stock above
// their max threshold.
func (e *Executor) InventoryViolations(ctx context.Context, limit int) ([]InventoryRow, error) {
	var out []InventoryRow
	err := e.readTx(ctx, sql.LevelDefault, "inventory", func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, inventoryViolationsQuery, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r InventoryRow
			if err := rows.Scan(&r.ID, &r.Name, &r.CurrentStock, &r.MaxThreshold); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TransactionViolations returns transactions whose amount is below bound,
// most negative first.
func (e *Executor) TransactionViolations(ctx context.Context, bound decimal.Decimal, limit int) ([]TransactionRow, error) {
	var out []TransactionRow
	err := e.readTx(ctx, sql.LevelDefault, "transaction_log", func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, transactionViolationsQuery, bound, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r TransactionRow
			if err := rows.Scan(&r.ID, &r.Type, &r.Amount, &r.CustomerID, &r.CreatedAt); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FailedBatches returns up to limit failing jobs active within the last hours,
// most recent first, each with its error-type counts and up to samples
// distinct error messages. Both reads share one repeatable-read snapshot.
func (e *Executor) FailedBatches(ctx context.Context, hours int, errorStatuses []string, limit, samples int) ([]BatchJob, error) {
	lowered := make([]string, len(errorStatuses))
	for i, s := range errorStatuses {
		lowered[i] = strings.ToLower(s)
	}

	var jobs []BatchJob
	err := e.readTx(ctx, sql.LevelRepeatableRead, "batch_jobs", func(ctx context.Context, tx *sql.Tx) error {
		var err error
		if jobs, err = scanBatchJobs(ctx, tx, hours, lowered, limit); err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}
		return attachBatchErrors(ctx, tx, jobs, samples)
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func scanBatchJobs(ctx context.Context, tx *sql.Tx, hours int, statuses []string, limit int) ([]BatchJob, error) {
	rows, err := tx.QueryContext(ctx, failedBatchesQuery, hours, pq.Array(statuses), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []BatchJob
	for rows.Next() {
		var j BatchJob
		if err := rows.Scan(&j.ID, &j.JobType, &j.Status, &j.Total, &j.Processed, &j.Failed, &j.StartedAt, &j.CompletedAt); err != nil {
			return nil, err
		}
		j.ErrorTypes = map[string]int{}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func attachBatchErrors(ctx context.Context, tx *sql.Tx, jobs []BatchJob, samples int) error {
	ids := make([]string, len(jobs))
	index := make(map[string]int, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
		index[j.ID] = i
	}

	rows, err := tx.QueryContext(ctx, batchErrorsQuery, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	seen := make(map[string]map[string]bool, len(jobs))
	for rows.Next() {
		var id, typ, msg string
		if err := rows.Scan(&id, &typ, &msg); err != nil {
			return err
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		jobs[i].ErrorTypes[typ]++
		if msg == "" || len(jobs[i].Samples) >= samples {
			continue
		}
		if seen[id] == nil {
			seen[id] = map[string]bool{}
		}
		if !seen[id][msg] {
			seen[id][msg] = true
			jobs[i].Samples = append(jobs[i].Samples, msg)
		}
	}
	return rows.Err()
}
