package probe

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/executor"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

// LockReader snapshots lock and session state.
type LockReader interface {
	LockWaits(ctx context.Context) ([]executor.LockWait, error)
	Sessions(ctx context.Context, pids []int) (*executor.SessionSnapshot, error)
}

// Deadlock is check_deadlock. Every blocked session is critical; sessions
// that wait on each other in a cycle are marked as a deadlock.
type Deadlock struct {
	db  LockReader
	now func() time.Time
}

// NewDeadlock creates the deadlock probe.
func NewDeadlock(db LockReader) *Deadlock {
	return &Deadlock{db: db, now: time.Now}
}

func (d *Deadlock) Name() string { return NameDeadlock }

// waitThreshold flags any blocked session regardless of how long it waited.
var waitThreshold = model.Threshold{Warning: 0, Critical: 0, Direction: model.Above, Inclusive: true}

// waiter is a blocked session's node in the wait graph.
type waiter struct {
	blockers  map[int]bool
	resources map[string]bool
	modes     map[string]bool
	lockType  string
}

func (d *Deadlock) Run(ctx context.Context, params Params) (*model.Report, error) {
	ctx, echo, err := prepare(ctx, params)
	if err != nil {
		return nil, err
	}

	waits, err := d.db.LockWaits(ctx)
	if err != nil {
		return nil, err
	}
	if len(waits) == 0 {
		return model.NewReport(d.Name(), d.now(), echo, nil), nil
	}

	graph := buildWaitGraph(waits)
	snap, err := d.db.Sessions(ctx, graphPIDs(graph))
	if err != nil {
		return nil, err
	}

	cycles := cycleMembers(graph)
	var findings []model.Finding
	for _, pid := range sortedKeys(graph) {
		sess, ok := snap.Sessions[pid]
		if !ok {
			continue // ended between the two snapshots
		}
		w := graph[pid]
		waitMs := float64(snap.Now.Sub(sess.QueryStart).Microseconds()) / 1000
		if waitMs < 0 {
			waitMs = 0
		}

		blockers := joinInts(sortedKeys(w.blockers))
		resources := strings.Join(sortedStrings(w.resources), ", ")
		msg := fmt.Sprintf("Session %d has waited %.0f ms for %s on %s, blocked by session(s) %s",
			pid, waitMs, strings.Join(sortedStrings(w.modes), "/"), resources, blockers)
		if cycles[pid] {
			msg += "; deadlock cycle detected"
		}

		f, ok := model.NewFinding(model.CategoryDeadlock, strconv.Itoa(pid), waitMs, model.UnitMilliseconds, waitThreshold, msg)
		if !ok {
			continue
		}
		f.Recommendation = model.DeadlockRecommendation
		f.Details = map[string]string{
			"blocking_pids": blockers,
			"resources":     resources,
			"lock_type":     w.lockType,
			"cycle":         strconv.FormatBool(cycles[pid]),
			"state":         sess.State,
			"user":          sess.User,
			"query":         truncate(sess.Query, 200),
		}
		if sess.WaitEvent != "" {
			f.Details["wait_event"] = sess.WaitEvent
		}
		findings = append(findings, f)
	}
	return model.NewReport(d.Name(), d.now(), echo, findings), nil
}

func buildWaitGraph(waits []executor.LockWait) map[int]*waiter {
	graph := make(map[int]*waiter)
	for _, lw := range waits {
		w, ok := graph[lw.BlockedPID]
		if !ok {
			w = &waiter{
				blockers:  map[int]bool{},
				resources: map[string]bool{},
				modes:     map[string]bool{},
				lockType:  lw.LockType,
			}
			graph[lw.BlockedPID] = w
		}
		w.blockers[lw.BlockingPID] = true
		w.resources[lw.Resource] = true
		w.modes[lw.Mode] = true
	}
	return graph
}

// graphPIDs returns every pid in the graph, blocked or blocking.
func graphPIDs(graph map[int]*waiter) []int {
	set := map[int]bool{}
	for pid, w := range graph {
		set[pid] = true
		for b := range w.blockers {
			set[b] = true
		}
	}
	return sortedKeys(set)
}

// cycleMembers returns the blocked pids that can reach themselves through
// the wait graph.
func cycleMembers(graph map[int]*waiter) map[int]bool {
	out := map[int]bool{}
	for start := range graph {
		visited := map[int]bool{}
		stack := sortedKeys(graph[start].blockers)
		for len(stack) > 0 {
			pid := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if pid == start {
				out[start] = true
				break
			}
			if visited[pid] {
				continue
			}
			visited[pid] = true
			if w, ok := graph[pid]; ok {
				for b := range w.blockers {
					stack = append(stack, b)
				}
			}
		}
	}
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func sortedStrings(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
