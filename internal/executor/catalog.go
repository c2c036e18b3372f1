package executor

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/lib/pq"
)

// LockWait is one ungranted lock paired with a granted lock another session
// holds on the same target.
type LockWait struct {
	BlockedPID  int
	BlockingPID int
	LockType    string
	Mode        string
	Resource    string
}

// Session is a pg_stat_activity row.
type Session struct {
	PID        int
	User       string
	State      string
	Query      string
	QueryStart time.Time
	WaitEvent  string
}

// SessionSnapshot is the activity of a set of sessions together with the
// server clock at the time of the read.
type SessionSnapshot struct {
	Now      time.Time
	Sessions map[int]Session
}

// RelationSize is the on-disk footprint of one relation.
type RelationSize struct {
	Name  string
	Bytes int64
}

const lockWaitsQuery = `
SELECT blocked.pid,
       blocking.pid,
       blocked.locktype,
       blocked.mode,
       CASE
           WHEN blocked.relation IS NOT NULL THEN blocked.relation::regclass::text
           WHEN blocked.transactionid IS NOT NULL THEN 'transaction ' || blocked.transactionid::text
           WHEN blocked.virtualxid IS NOT NULL THEN 'virtualxid ' || blocked.virtualxid
           ELSE blocked.locktype
       END
FROM pg_catalog.pg_locks blocked
JOIN pg_catalog.pg_locks blocking
  ON blocking.locktype = blocked.locktype
 AND blocking.database IS NOT DISTINCT FROM blocked.database
 AND blocking.relation IS NOT DISTINCT FROM blocked.relation
 AND blocking.page IS NOT DISTINCT FROM blocked.page
 AND blocking.tuple IS NOT DISTINCT FROM blocked.tuple
 AND blocking.virtualxid IS NOT DISTINCT FROM blocked.virtualxid
 AND blocking.transactionid IS NOT DISTINCT FROM blocked.transactionid
 AND blocking.classid IS NOT DISTINCT FROM blocked.classid
 AND blocking.objid IS NOT DISTINCT FROM blocked.objid
 AND blocking.objsubid IS NOT DISTINCT FROM blocked.objsubid
 AND blocking.pid <> blocked.pid
WHERE NOT blocked.granted
  AND blocking.granted
  AND blocked.pid IS NOT NULL
  AND blocking.pid IS NOT NULL
ORDER BY blocked.pid, blocking.pid`

const sessionsQuery = `
SELECT now(),
       a.pid,
       COALESCE(a.usename, ''),
       COALESCE(a.state, ''),
       COALESCE(a.query, ''),
       a.query_start,
       COALESCE(a.wait_event_type || ':' || a.wait_event, '')
FROM (SELECT 1) AS clock
LEFT JOIN pg_catalog.pg_stat_activity a ON a.pid = ANY($1)`

const databaseSizeQuery = `SELECT current_database(), pg_database_size(current_database())`

const largestRelationsQuery = `
SELECT c.oid::regclass::text, pg_total_relation_size(c.oid)
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r', 'm', 'p')
  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
  AND n.nspname NOT LIKE 'pg_toast%'
ORDER BY pg_total_relation_size(c.oid) DESC
LIMIT $1`

// LockWaits returns the current ungranted locks and who holds them.
func (e *Executor) LockWaits(ctx context.Context) ([]LockWait, error) {
	var waits []LockWait
	err := e.readTx(ctx, sql.LevelDefault, "pg_locks snapshot", func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, lockWaitsQuery)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var w LockWait
			if err := rows.Scan(&w.BlockedPID, &w.BlockingPID, &w.LockType, &w.Mode, &w.Resource); err != nil {
				return err
			}
			waits = append(waits, w)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return waits, nil
}

// Sessions returns pg_stat_activity rows for pids. Sessions that ended since
// the lock snapshot are simply absent from the result.
func (e *Executor) Sessions(ctx context.Context, pids []int) (*SessionSnapshot, error) {
	snap := &SessionSnapshot{Sessions: make(map[int]Session, len(pids))}
	ids := make([]int64, len(pids))
	for i, p := range pids {
		ids[i] = int64(p)
	}

	err := e.readTx(ctx, sql.LevelDefault, "pg_stat_activity snapshot", func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, sessionsQuery, pq.Array(ids))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				now                         time.Time
				pid                         sql.NullInt64
				user, state, query, waitEvt string
				start                       sql.NullTime
			)
			if err := rows.Scan(&now, &pid, &user, &state, &query, &start, &waitEvt); err != nil {
				return err
			}
			snap.Now = now
			if !pid.Valid || !start.Valid {
				continue
			}
			snap.Sessions[int(pid.Int64)] = Session{
				PID:        int(pid.Int64),
				User:       user,
				State:      state,
				Query:      query,
				QueryStart: start.Time,
				WaitEvent:  waitEvt,
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// DatabaseSize returns the name and pg_database_size of the connected database.
func (e *Executor) DatabaseSize(ctx context.Context) (string, int64, error) {
	var (
		name string
		size int64
	)
	err := e.readTx(ctx, sql.LevelDefault, "pg_database_size", func(ctx context.Context, tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, databaseSizeQuery).Scan(&name, &size)
	})
	if err != nil {
		return "", 0, err
	}
	return name, size, nil
}

// LargestRelations returns the n biggest user relations. The read runs under
// lockTimeout so a relation being rewritten is never waited on.
func (e *Executor) LargestRelations(ctx context.Context, n int, lockTimeout time.Duration) ([]RelationSize, error) {
	var out []RelationSize
	err := e.readTx(ctx, sql.LevelDefault, "pg_total_relation_size", func(ctx context.Context, tx *sql.Tx) error {
		if e.opts.Dialect == Postgres && lockTimeout > 0 {
			ms := strconv.FormatInt(lockTimeout.Milliseconds(), 10)
			if _, err := tx.ExecContext(ctx, "SET LOCAL lock_timeout = "+ms); err != nil {
				return err
			}
		}
		rows, err := tx.QueryContext(ctx, largestRelationsQuery, n)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r RelationSize
			if err := rows.Scan(&r.Name, &r.Bytes); err != nil {
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
