package probe

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/executor"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// fakeDB implements every reader interface the probes depend on.
type fakeDB struct {
	calls int

	timed    *executor.TimedResult
	timedErr error

	records    []executor.SlowQueryRecord
	recordsMin float64

	waits    []executor.LockWait
	sessions *executor.SessionSnapshot

	dbName  string
	dbSize  int64
	rels    []executor.RelationSize
	relsErr error

	orders       []executor.OrderRow
	inventory    []executor.InventoryRow
	transactions []executor.TransactionRow
	txBound      decimal.Decimal

	batches    []executor.BatchJob
	batchHours int
	batchLimit int

	err error
}

func (f *fakeDB) ExecuteTimed(ctx context.Context, query string) (*executor.TimedResult, error) {
	f.calls++
	if f.timedErr != nil {
		return nil, f.timedErr
	}
	res := *f.timed
	res.Statement = &executor.Statement{Text: query, Keyword: "select", ReadOnly: true}
	return &res, nil
}

func (f *fakeDB) SlowQueryRecords(ctx context.Context, lookback time.Duration, minMs float64, limit int) ([]executor.SlowQueryRecord, error) {
	f.calls++
	f.recordsMin = minMs
	if f.err != nil {
		return nil, f.err
	}
	var out []executor.SlowQueryRecord
	for _, r := range f.records {
		if r.ExecutionMs > minMs && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeDB) LockWaits(ctx context.Context) ([]executor.LockWait, error) {
	f.calls++
	return f.waits, f.err
}

func (f *fakeDB) Sessions(ctx context.Context, pids []int) (*executor.SessionSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions, nil
}

func (f *fakeDB) DatabaseSize(ctx context.Context) (string, int64, error) {
	f.calls++
	if f.err != nil {
		return "", 0, f.err
	}
	return f.dbName, f.dbSize, nil
}

func (f *fakeDB) LargestRelations(ctx context.Context, n int, lockTimeout time.Duration) ([]executor.RelationSize, error) {
	f.calls++
	if f.relsErr != nil {
		return nil, f.relsErr
	}
	if len(f.rels) > n {
		return f.rels[:n], nil
	}
	return f.rels, nil
}

func (f *fakeDB) OrderViolations(ctx context.Context, statuses []string, limit int) ([]executor.OrderRow, error) {
	f.calls++
	return f.orders, f.err
}

func (f *fakeDB) InventoryViolations(ctx context.Context, limit int) ([]executor.InventoryRow, error) {
	f.calls++
	return f.inventory, f.err
}

func (f *fakeDB) TransactionViolations(ctx context.Context, bound decimal.Decimal, limit int) ([]executor.TransactionRow, error) {
	f.calls++
	f.txBound = bound
	return f.transactions, f.err
}

func (f *fakeDB) FailedBatches(ctx context.Context, hours int, errorStatuses []string, limit, samples int) ([]executor.BatchJob, error) {
	f.calls++
	f.batchHours, f.batchLimit = hours, limit
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) > limit {
		return f.batches[:limit], nil
	}
	return f.batches, nil
}
