package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/illsync/internal/storage"
	"github.com/steveyegge/illsync/internal/types"
)

const storageScopeName = "github.com/steveyegge/illsync/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in ill.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStorage struct {
	inner  storage.Storage
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStorage returns s decorated with OTel instrumentation.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	return newInstrumentedStorage(s)
}

func newInstrumentedStorage(s storage.Storage) *InstrumentedStorage {
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("ill.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("ill.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("ill.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStorage{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func requestAttr(id int64) attribute.KeyValue {
	return attribute.Int64("ill.request.id", id)
}

// ── Requests ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateRequest(ctx context.Context, r *types.Request) error {
	attrs := []attribute.KeyValue{
		attribute.String("ill.request.direction", string(r.Direction)),
		attribute.String("ill.request.status", r.Status),
	}
	ctx, span, t := s.op(ctx, "CreateRequest", attrs...)
	err := s.inner.CreateRequest(ctx, r)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetRequest(ctx context.Context, id int64) (*types.Request, error) {
	ctx, span, t := s.op(ctx, "GetRequest", requestAttr(id))
	v, err := s.inner.GetRequest(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetRequestByOrderID(ctx context.Context, orderID string) (*types.Request, error) {
	ctx, span, t := s.op(ctx, "GetRequestByOrderID", attribute.String("ill.order_id", orderID))
	v, err := s.inner.GetRequestByOrderID(ctx, orderID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) UpdateRequest(ctx context.Context, r *types.Request) error {
	attrs := []attribute.KeyValue{attribute.String("ill.request.status", r.Status)}
	ctx, span, t := s.op(ctx, "UpdateRequest", append(attrs, requestAttr(r.ID))...)
	err := s.inner.UpdateRequest(ctx, r)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) ListRequests(ctx context.Context, filter types.RequestFilter) ([]*types.Request, error) {
	ctx, span, t := s.op(ctx, "ListRequests", attribute.String("ill.filter.status", filter.Status))
	v, err := s.inner.ListRequests(ctx, filter)
	span.SetAttributes(attribute.Int("ill.result.count", len(v)))
	s.done(ctx, span, t, err)
	return v, err
}

// ── Attributes ──────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetAttributes(ctx context.Context, requestID int64) ([]*types.Attribute, error) {
	ctx, span, t := s.op(ctx, "GetAttributes", requestAttr(requestID))
	v, err := s.inner.GetAttributes(ctx, requestID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) AddAttribute(ctx context.Context, a *types.Attribute) error {
	attrs := []attribute.KeyValue{attribute.String("ill.attribute.type", a.Type)}
	ctx, span, t := s.op(ctx, "AddAttribute", append(attrs, requestAttr(a.RequestID))...)
	err := s.inner.AddAttribute(ctx, a)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) UpdateAttribute(ctx context.Context, a *types.Attribute) error {
	attrs := []attribute.KeyValue{attribute.String("ill.attribute.type", a.Type)}
	ctx, span, t := s.op(ctx, "UpdateAttribute", append(attrs, requestAttr(a.RequestID))...)
	err := s.inner.UpdateAttribute(ctx, a)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Items and holds ─────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateItem(ctx context.Context, it *types.Item) error {
	ctx, span, t := s.op(ctx, "CreateItem")
	err := s.inner.CreateItem(ctx, it)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) GetItem(ctx context.Context, id int64) (*types.Item, error) {
	ctx, span, t := s.op(ctx, "GetItem", attribute.Int64("ill.item.id", id))
	v, err := s.inner.GetItem(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) UpdateItem(ctx context.Context, it *types.Item) error {
	ctx, span, t := s.op(ctx, "UpdateItem", attribute.Int64("ill.item.id", it.ID))
	err := s.inner.UpdateItem(ctx, it)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) CreateHold(ctx context.Context, h *types.Hold) error {
	ctx, span, t := s.op(ctx, "CreateHold")
	err := s.inner.CreateHold(ctx, h)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) SearchHolds(ctx context.Context, biblioID int64) ([]*types.Hold, error) {
	ctx, span, t := s.op(ctx, "SearchHolds", attribute.Int64("ill.biblio.id", biblioID))
	v, err := s.inner.SearchHolds(ctx, biblioID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) DeleteHold(ctx context.Context, id int64) error {
	ctx, span, t := s.op(ctx, "DeleteHold")
	err := s.inner.DeleteHold(ctx, id)
	s.done(ctx, span, t, err)
	return err
}

// ── Partners ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) FindPartner(ctx context.Context, code string) (*types.Partner, error) {
	ctx, span, t := s.op(ctx, "FindPartner", attribute.String("ill.partner.code", code))
	v, err := s.inner.FindPartner(ctx, code)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) UpsertPartner(ctx context.Context, p *types.Partner) error {
	ctx, span, t := s.op(ctx, "UpsertPartner", attribute.String("ill.partner.code", p.Code))
	err := s.inner.UpsertPartner(ctx, p)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
