// Package lifecycle drives ILL requests through the status graph, keeping
// local state in step with the broker.
//
// Every action returns a types.Outcome. Validation failures, broker faults
// and storage errors are reported in-band; only a misconfigured Service
// fails construction with a Go error.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/illsync/internal/attrs"
	"github.com/steveyegge/illsync/internal/broker"
	"github.com/steveyegge/illsync/internal/debug"
	"github.com/steveyegge/illsync/internal/notification"
	"github.com/steveyegge/illsync/internal/statusgraph"
	"github.com/steveyegge/illsync/internal/storage"
	"github.com/steveyegge/illsync/internal/telemetry"
	"github.com/steveyegge/illsync/internal/types"
)

const (
	DefaultBackend        = "Libris"
	DefaultLoanItemType   = "ILL"
	DefaultClosedItemType = "ILL-CLOSED"

	// AttrValueOnOrder is the status attribute value of a request the
	// broker has not delivered yet; such requests cannot be renewed.
	AttrValueOnOrder  = "On order"
	AttrValueReverted = "Reverted"
	AttrValueRenewed  = "Renewed"
)

const scope = "github.com/steveyegge/illsync/lifecycle"

// Sentinel errors mapped onto Outcome statuses.
var (
	ErrUnknownRequest    = errors.New("request has no status; it was never populated")
	ErrNotRenewed        = errors.New("request cannot be renewed before delivery")
	ErrItemAlreadyTagged = errors.New("item already has a barcode")
	ErrInvalidTransition = errors.New("action not allowed from current status")
	ErrInvalidParams     = errors.New("invalid parameters")
)

// Broker is the part of broker.Client the lifecycle uses.
type Broker interface {
	FetchRequestSnapshot(ctx context.Context, orderID string) (*broker.Snapshot, error)
	PushAction(ctx context.Context, orderID string, action broker.Action, timestamp string, extra url.Values) (*broker.Snapshot, error)
}

// brokerError marks a failure that came from the broker call itself.
type brokerError struct{ err error }

func (e *brokerError) Error() string { return e.err.Error() }
func (e *brokerError) Unwrap() error { return e.err }

// Service runs lifecycle actions. It performs no locking: callers must not
// run two actions against the same request concurrently.
type Service struct {
	store      storage.Storage
	attrs      *attrs.Store
	broker     Broker
	translator *broker.Translator
	graph      *statusgraph.Graph
	notices    *notification.Templates
	notifier   notification.Notifier
	logger     *slog.Logger
	now        func() time.Time

	strict         bool
	attrMode       attrs.Mode
	loanItemType   string
	closedItemType string
	eventDir       string

	tracer  trace.Tracer
	actions metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithStrictTransitions toggles enforcement of graph transitions. When
// false, invalid transitions are logged and allowed.
func WithStrictTransitions(strict bool) Option {
	return func(s *Service) { s.strict = strict }
}

// WithAttributeMode selects upsert or legacy append attribute writes.
func WithAttributeMode(m attrs.Mode) Option {
	return func(s *Service) { s.attrMode = m }
}

// WithItemTypes sets the item types used for received and closed items.
func WithItemTypes(loan, closed string) Option {
	return func(s *Service) {
		if loan != "" {
			s.loanItemType = loan
		}
		if closed != "" {
			s.closedItemType = closed
		}
	}
}

// WithNotifier sets where receive sends pickup notices.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithTemplates sets the notice templates.
func WithTemplates(t *notification.Templates) Option {
	return func(s *Service) {
		if t != nil {
			s.notices = t
		}
	}
}

// WithGraph replaces the built-in status graph.
func WithGraph(g *statusgraph.Graph) Option {
	return func(s *Service) {
		if g != nil {
			s.graph = g
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEventLog appends state changes to <dir>/events.log.
func WithEventLog(dir string) Option {
	return func(s *Service) { s.eventDir = dir }
}

// New creates a Service. client may be nil when only local actions are used;
// broker-backed actions then fail in-band.
func New(store storage.Storage, client Broker, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("lifecycle: storage is required")
	}
	s := &Service{
		store:          store,
		broker:         client,
		translator:     broker.NewTranslator(),
		graph:          statusgraph.Default(),
		notices:        notification.DefaultTemplates(),
		logger:         slog.Default(),
		now:            time.Now,
		strict:         true,
		attrMode:       attrs.ModeUpsert,
		loanItemType:   DefaultLoanItemType,
		closedItemType: DefaultClosedItemType,
		tracer:         telemetry.Tracer(scope),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.attrs = attrs.New(store, s.attrMode)

	counter, err := telemetry.Meter(scope).Int64Counter("ill.lifecycle.actions",
		metric.WithDescription("Lifecycle actions by method and outcome status"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: metrics: %w", err)
	}
	s.actions = counter
	return s, nil
}

// Graph returns the status graph in use.
func (s *Service) Graph() *statusgraph.Graph {
	return s.graph
}

// Attributes returns the attribute store in use.
func (s *Service) Attributes() *attrs.Store {
	return s.attrs
}

// Invoke dispatches to the action named by method. params must be the
// matching Params type; requestID is ignored for create.
func (s *Service) Invoke(ctx context.Context, method string, requestID int64, params Params) types.Outcome {
	if params == nil || params.Method() != method {
		return s.finish(ctx, nil, method, "", types.Outcome{}, fmt.Errorf("%w: %T for method %q", ErrInvalidParams, params, method))
	}
	switch p := params.(type) {
	case CreateParams:
		return s.Create(ctx, p)
	case ConfirmParams:
		return s.Confirm(ctx, requestID, p)
	case ReceiveParams:
		return s.Receive(ctx, requestID, p)
	case RespondParams:
		return s.Respond(ctx, requestID, p)
	case SetStatusReadParams:
		return s.SetStatusRead(ctx, requestID)
	case CloseParams:
		return s.Close(ctx, requestID)
	case RenewParams:
		return s.Renew(ctx, requestID)
	case CancelParams:
		return s.Cancel(ctx, requestID)
	case StatusParams:
		return s.Status(ctx, requestID, p)
	case RefreshParams:
		return s.Refresh(ctx, requestID)
	}
	return s.finish(ctx, nil, method, "", types.Outcome{}, fmt.Errorf("%w: unsupported params %T", ErrInvalidParams, params))
}

type actionFunc func(ctx context.Context, req *types.Request) (types.Outcome, error)

// run loads the request, runs fn inside a span and converts its error.
func (s *Service) run(ctx context.Context, method string, requestID int64, phase Phase, fn actionFunc) types.Outcome {
	ctx, span := s.tracer.Start(ctx, "lifecycle."+method, trace.WithAttributes(
		attribute.Int64("ill.request_id", requestID),
		attribute.String("ill.phase", phase.String()),
	))
	defer span.End()

	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = fmt.Errorf("%w: request %d does not exist", ErrUnknownRequest, requestID)
		}
		return s.finish(ctx, span, method, "", types.Outcome{}, err)
	}
	out, err := fn(ctx, req)
	return s.finish(ctx, span, method, req.Status, out, err)
}

// finish fills the common Outcome fields, folds err in and records metrics.
func (s *Service) finish(ctx context.Context, span trace.Span, method, status string, out types.Outcome, err error) types.Outcome {
	out.Method = method
	if out.Next == "" {
		out.Next = types.ViewRequest
	}
	if err != nil {
		out = outcomeFor(method, err)
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, out.Status)
		}
		s.logger.Warn("lifecycle action failed", "action", method, "status", out.Status, "error", err)
	} else if out.Status == "" {
		out.Status = status
	}
	s.actions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("ill.method", method),
		attribute.Bool("ill.error", out.Error != 0),
	))
	return out
}

// outcomeFor converts an error into an error Outcome.
func outcomeFor(method string, err error) types.Outcome {
	out := types.Outcome{Error: 1, Method: method, Next: types.ViewRequest, Message: err.Error()}
	var apiErr *broker.APIError
	var bErr *brokerError
	switch {
	case errors.Is(err, ErrUnknownRequest):
		out.Status = types.StatusUnknownRequest
	case errors.Is(err, ErrNotRenewed):
		out.Status = types.StatusNotRenewed
	case errors.Is(err, ErrItemAlreadyTagged):
		out.Status = types.StatusItemAlreadyTagged
	case errors.Is(err, ErrInvalidTransition):
		out.Status = types.StatusInvalidTransition
	case errors.Is(err, ErrInvalidParams):
		out.Status = types.StatusInvalidParams
	case errors.Is(err, broker.ErrUnmappedStatus):
		out.Status = types.StatusUnmapped
	case errors.Is(err, storage.ErrDuplicate):
		out.Status = types.StatusDuplicate
	case errors.As(err, &apiErr):
		out.Status = types.StatusBrokerError
		out.Message = apiErr.Status
	case errors.As(err, &bErr):
		out.Status = types.StatusBrokerError
	default:
		out.Status = types.StatusInternal
	}
	return out
}

// checkTransition enforces the graph in strict mode and warns otherwise.
func (s *Service) checkTransition(req *types.Request, action string) error {
	if s.graph.IsValidTransition(req.Status, action) {
		return nil
	}
	if s.strict {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, req.Status)
	}
	s.logger.Warn("transition not in status graph", "request_id", req.ID, "from", req.Status, "action", action)
	return nil
}

// requireIncoming restricts lender-side actions to incoming requests.
func (s *Service) requireIncoming(req *types.Request, action string) error {
	if req.Direction == types.DirectionIncoming {
		return nil
	}
	if s.strict {
		return fmt.Errorf("%w: %s is only valid for incoming requests", ErrInvalidTransition, action)
	}
	s.logger.Warn("lender action on outgoing request", "request_id", req.ID, "action", action)
	return nil
}

func (s *Service) nodeName(id string) string {
	if n, err := s.graph.Lookup(id); err == nil {
		return n.Name
	}
	return id
}

// setStatus moves req to status in memory and logs the change. The caller
// persists req.
func (s *Service) setStatus(req *types.Request, status, action string) {
	from := req.Status
	req.Status = status
	req.Updated = s.now()
	if from == status {
		return
	}
	s.logger.Info("request status changed", "request_id", req.ID, "from", from, "to", status, "action", action)
	debug.LogEvent(s.eventDir, "status", req.ID, fmt.Sprintf("%s:%s->%s", action, from, status))
}

// requireBroker returns the order id after checking a broker call is possible.
func (s *Service) requireBroker(req *types.Request) (string, error) {
	if s.broker == nil {
		return "", &brokerError{errors.New("no broker client configured")}
	}
	if req.OrderID == "" {
		return "", fmt.Errorf("%w: request %d has no broker order id", ErrInvalidParams, req.ID)
	}
	return req.OrderID, nil
}

// pushAction runs the fetch, act, merge protocol: fetch a fresh snapshot for
// its timestamp, post the action once, then fold the reply into local state.
// Nothing local is written unless the broker accepted the action.
func (s *Service) pushAction(ctx context.Context, req *types.Request, method string, action broker.Action, extra url.Values) (string, error) {
	orderID, err := s.requireBroker(req)
	if err != nil {
		return "", err
	}
	snap, err := s.broker.FetchRequestSnapshot(ctx, orderID)
	if err != nil {
		return "", &brokerError{err}
	}
	updated, err := s.broker.PushAction(ctx, orderID, action, snap.LastModified, extra)
	if err != nil {
		return "", &brokerError{err}
	}
	return s.merge(ctx, req, method, updated)
}

// merge translates a snapshot and writes status, status snapshot and
// last_modified. The attributes go first so a failure never leaves a new
// request status next to a stale last_modified. It returns the previous status.
func (s *Service) merge(ctx context.Context, req *types.Request, method string, snap *broker.Snapshot) (string, error) {
	code, err := s.translator.Translate(snap.RawStatus, req.Direction)
	if err != nil {
		return "", err
	}
	if _, err := s.graph.Lookup(code); err != nil {
		return "", fmt.Errorf("%w: %v", broker.ErrUnmappedStatus, err)
	}
	if err := s.attrs.Set(ctx, req.ID, types.AttrStatus, snap.RawStatus); err != nil {
		return "", err
	}
	if err := s.attrs.Set(ctx, req.ID, types.AttrLastModified, snap.LastModified); err != nil {
		return "", err
	}
	from := req.Status
	s.setStatus(req, code, method)
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return "", fmt.Errorf("save request %d: %w", req.ID, err)
	}
	return from, nil
}
