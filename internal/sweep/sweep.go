// Package sweep refreshes the broker status of every open request.
package sweep

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/illsync/internal/statusgraph"
	"github.com/steveyegge/illsync/internal/storage"
	"github.com/steveyegge/illsync/internal/types"
)

// DefaultConcurrency bounds parallel broker fetches.
const DefaultConcurrency = 4

// TerminalStatuses are never refreshed.
var TerminalStatuses = []string{
	statusgraph.NodeID(types.DirectionIncoming, statusgraph.CodeClosed),
	statusgraph.NodeID(types.DirectionOutgoing, statusgraph.CodeClosed),
	statusgraph.CancelledID,
}

// Refresher is satisfied by *lifecycle.Service.
type Refresher interface {
	Refresh(ctx context.Context, requestID int64) types.Outcome
}

// Result is the outcome for one request.
type Result struct {
	RequestID int64  `json:"request_id"`
	OrderID   string `json:"order_id"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Changed   bool   `json:"changed"`
	Error     string `json:"error,omitempty"`
}

// Summary aggregates a sweep.
type Summary struct {
	Refreshed int      `json:"refreshed"`
	Unchanged int      `json:"unchanged"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"` // open requests without a broker order id
	Results   []Result `json:"results"`
}

// Runner refreshes requests with bounded concurrency. Different requests run
// in parallel; a request is never refreshed twice in one run.
type Runner struct {
	store       storage.RequestStore
	refresher   Refresher
	concurrency int
	direction   types.Direction
	logger      *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency sets the number of parallel refreshes (minimum 1).
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithDirection limits the sweep to one direction.
func WithDirection(d types.Direction) Option {
	return func(r *Runner) { r.direction = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Runner.
func New(store storage.RequestStore, refresher Refresher, opts ...Option) *Runner {
	r := &Runner{
		store:       store,
		refresher:   refresher,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run refreshes every non-terminal request. Per-request failures are
// collected in the summary; only listing errors and cancellation abort it.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	reqs, err := r.store.ListRequests(ctx, types.RequestFilter{
		Direction: r.direction,
		Exclude:   TerminalStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("list open requests: %w", err)
	}

	seen := make(map[int64]bool, len(reqs))
	var todo []*types.Request
	summary := &Summary{}
	for _, req := range reqs {
		if seen[req.ID] {
			continue
		}
		seen[req.ID] = true
		if req.OrderID == "" {
			summary.Skipped++
			continue
		}
		todo = append(todo, req)
	}

	results := make([]Result, len(todo))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, req := range todo {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := r.refresher.Refresh(gctx, req.ID)
			res := Result{RequestID: req.ID, OrderID: req.OrderID, From: req.Status}
			if out.Failed() {
				res.Error = fmt.Sprintf("%s: %s", out.Status, out.Message)
			} else {
				res.To = out.Status
				res.Changed = out.Status != req.Status
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, res := range results {
		switch {
		case res.Error != "":
			summary.Failed++
			r.logger.Warn("sweep refresh failed", "request_id", res.RequestID, "order_id", res.OrderID, "error", res.Error)
		case res.Changed:
			summary.Refreshed++
		default:
			summary.Unchanged++
		}
	}
	summary.Results = results
	r.logger.Info("sweep finished", "refreshed", summary.Refreshed, "unchanged", summary.Unchanged,
		"failed", summary.Failed, "skipped", summary.Skipped)
	return summary, nil
}
