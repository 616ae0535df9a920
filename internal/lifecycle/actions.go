package lifecycle

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/steveyegge/illsync/internal/broker"
	"github.com/steveyegge/illsync/internal/debug"
	"github.com/steveyegge/illsync/internal/notification"
	"github.com/steveyegge/illsync/internal/statusgraph"
	"github.com/steveyegge/illsync/internal/timeparsing"
	"github.com/steveyegge/illsync/internal/types"
)

// Create stores a broker-originated request locally. It makes no outbound
// call; the caller has already fetched the broker record.
func (s *Service) Create(ctx context.Context, p CreateParams) types.Outcome {
	method := statusgraph.ActionCreate
	ctx, span := s.tracer.Start(ctx, "lifecycle."+method)
	defer span.End()

	out, err := s.create(ctx, p)
	return s.finish(ctx, span, method, out.Status, out, err)
}

func (s *Service) create(ctx context.Context, p CreateParams) (types.Outcome, error) {
	if p.Request == nil {
		return types.Outcome{}, fmt.Errorf("%w: broker record is required", ErrInvalidParams)
	}
	if !p.Direction.IsValid() {
		return types.Outcome{}, fmt.Errorf("%w: direction %q", ErrInvalidParams, p.Direction)
	}
	status, err := s.translator.Translate(p.Request.Status, p.Direction)
	if err != nil {
		return types.Outcome{}, err
	}
	if _, err := s.graph.Lookup(status); err != nil {
		return types.Outcome{}, fmt.Errorf("%w: %v", broker.ErrUnmappedStatus, err)
	}

	backend := p.Backend
	if backend == "" {
		backend = DefaultBackend
	}
	now := s.now()
	req := &types.Request{
		OrderID:   strings.TrimSpace(p.Request.RequestID),
		Status:    status,
		Direction: p.Direction,
		BiblioID:  p.BiblioID,
		ItemID:    p.ItemID,
		PatronID:  p.PatronID,
		PartnerID: p.PartnerID,
		Branch:    p.Branch,
		Placed:    &now,
		Updated:   now,
		Cost:      p.Cost,
		Backend:   backend,
		Medium:    p.Request.MediaType,
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return types.Outcome{}, fmt.Errorf("create request for order %s: %w", req.OrderID, err)
	}

	values := p.Request.Attributes()
	for k, v := range p.Attributes {
		values[k] = v
	}
	if err := s.attrs.UpsertAll(ctx, req.ID, values); err != nil {
		return types.Outcome{}, err
	}

	s.logger.Info("request created", "request_id", req.ID, "order_id", req.OrderID, "status", status)
	debug.LogEvent(s.eventDir, "create", req.ID, req.OrderID)
	return types.Outcome{
		Status: status,
		Stage:  StageCommit,
		Value:  map[string]any{"request_id": req.ID, "status": status},
	}, nil
}

// Confirm acknowledges a created request. The broker has no confirm action,
// so the commit phase changes nothing.
func (s *Service) Confirm(ctx context.Context, requestID int64, p ConfirmParams) types.Outcome {
	method := statusgraph.ActionConfirm
	return s.run(ctx, method, requestID, p.Phase, func(ctx context.Context, req *types.Request) (types.Outcome, error) {
		if p.Phase == AwaitingInput {
			return types.Outcome{
				Stage: method,
				Value: map[string]any{"order_id": req.OrderID, "status": req.Status, "name": s.nodeName(req.Status)},
			}, nil
		}
		return types.Outcome{Stage: StageCommit, Message: "Request confirmed"}, nil
	})
}

// Receive records the arrival of a loan (IN_ANK) or copy (IN_AVSL). The form
// phase returns previews of the pickup notice.
func (s *Service) Receive(ctx context.Context, requestID int64, p ReceiveParams) types.Outcome {
	method := statusgraph.ActionReceive
	return s.run(ctx, method, requestID, p.Phase, func(ctx context.Context, req *types.Request) (types.Outcome, error) {
		if err := s.requireIncoming(req, method); err != nil {
			return types.Outcome{}, err
		}
		if err := s.checkTransition(req, method); err != nil {
			return types.Outcome{}, err
		}
		view, err := s.attrs.View(ctx, req.ID)
		if err != nil {
			return types.Outcome{}, err
		}
		if p.Phase == AwaitingInput {
			notices, err := s.notices.RenderAll(notification.CodePickupReady, s.noticeData(req, view))
			if err != nil {
				return types.Outcome{}, err
			}
			return types.Outcome{
				Stage: method,
				Value: map[string]any{"notices": notices, "copy": isCopy(req, view)},
			}, nil
		}
		return s.commitReceive(ctx, req, view, p)
	})
}

func (s *Service) commitReceive(ctx context.Context, req *types.Request, view map[string]string, p ReceiveParams) (types.Outcome, error) {
	now := s.now()
	guar, err := timeparsing.ParseDueDate(p.DueDateGuar, now)
	if err != nil {
		return types.Outcome{}, fmt.Errorf("%w: due_date_guar: %v", ErrInvalidParams, err)
	}
	maxDate, err := timeparsing.ParseDueDate(p.DueDateMax, now)
	if err != nil {
		return types.Outcome{}, fmt.Errorf("%w: due_date_max: %v", ErrInvalidParams, err)
	}

	// Check the item before writing anything so a refusal leaves no trace.
	var item *types.Item
	if req.ItemID != 0 {
		if item, err = s.store.GetItem(ctx, req.ItemID); err != nil {
			return types.Outcome{}, fmt.Errorf("load item %d: %w", req.ItemID, err)
		}
	}
	if p.Barcode != "" && item != nil && item.Barcode != "" {
		return types.Outcome{}, fmt.Errorf("%w: item %d carries %q", ErrItemAlreadyTagged, item.ID, item.Barcode)
	}

	if guar != "" {
		if err := s.attrs.Upsert(ctx, req.ID, types.AttrDueDateGuar, guar); err != nil {
			return types.Outcome{}, err
		}
	}
	if maxDate != "" {
		if err := s.attrs.Upsert(ctx, req.ID, types.AttrDueDateMax, maxDate); err != nil {
			return types.Outcome{}, err
		}
	}

	if p.Barcode != "" {
		if item == nil {
			item = &types.Item{BiblioID: req.BiblioID, Barcode: p.Barcode, ItemType: s.loanItemType}
			if err := s.store.CreateItem(ctx, item); err != nil {
				return types.Outcome{}, fmt.Errorf("create item: %w", err)
			}
			req.ItemID = item.ID
		} else {
			item.Barcode = p.Barcode
			if err := s.store.UpdateItem(ctx, item); err != nil {
				return types.Outcome{}, fmt.Errorf("update item %d: %w", item.ID, err)
			}
		}
	}

	code := statusgraph.CodeArrived
	if isCopy(req, view) {
		code = statusgraph.CodeClosed
		req.Completed = &now
	}
	target := statusgraph.NodeID(req.Direction, code)
	s.setStatus(req, target, statusgraph.ActionReceive)
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return types.Outcome{}, fmt.Errorf("save request %d: %w", req.ID, err)
	}

	if p.Notify {
		s.notify(ctx, req, view, guar)
	}
	return types.Outcome{
		Stage: StageCommit,
		Value: map[string]any{"status": target, "item_id": req.ItemID, types.AttrDueDateGuar: guar, types.AttrDueDateMax: maxDate},
	}, nil
}

// isCopy reports whether the request is for a copy the patron keeps rather
// than a loan.
func isCopy(req *types.Request, view map[string]string) bool {
	medium := req.Medium
	if medium == "" {
		medium = view[types.AttrMediaType]
	}
	switch strings.ToLower(strings.TrimSpace(medium)) {
	case "kopia", "copy":
		return true
	}
	return false
}

func (s *Service) noticeData(req *types.Request, view map[string]string) notification.Data {
	return notification.Data{
		RequestID: req.ID,
		OrderID:   req.OrderID,
		Title:     view[types.AttrTitle],
		Author:    view[types.AttrAuthor],
		Branch:    req.Branch,
		DueDate:   view[types.AttrDueDateGuar],
		Library:   view[types.AttrLibrary],
	}
}

// notify sends the pickup notices. Delivery failures are logged by the
// notifier and never fail the action.
func (s *Service) notify(ctx context.Context, req *types.Request, view map[string]string, dueDate string) {
	if s.notifier == nil || req.PatronID == 0 {
		return
	}
	data := s.noticeData(req, view)
	if dueDate != "" {
		data.DueDate = dueDate
	}
	notices, err := s.notices.RenderAll(notification.CodePickupReady, data)
	if err != nil {
		s.logger.Warn("render pickup notice", "request_id", req.ID, "error", err)
		return
	}
	for _, n := range notices {
		s.notifier.Notify(ctx, req.PatronID, n)
	}
}

// Respond answers a read request on the broker.
func (s *Service) Respond(ctx context.Context, requestID int64, p RespondParams) types.Outcome {
	method := statusgraph.ActionRespond
	return s.run(ctx, method, requestID, p.Phase, func(ctx context.Context, req *types.Request) (types.Outcome, error) {
		if err := s.requireIncoming(req, method); err != nil {
			return types.Outcome{}, err
		}
		if err := s.checkTransition(req, method); err != nil {
			return types.Outcome{}, err
		}
		if p.Phase == AwaitingInput {
			return types.Outcome{
				Stage: method,
				Value: map[string]any{"responses": broker.ResponseOptions},
			}, nil
		}
		if !broker.IsResponseID(p.ResponseID) {
			return types.Outcome{}, fmt.Errorf("%w: unknown response_id %q", ErrInvalidParams, p.ResponseID)
		}

		extra := url.Values{}
		extra.Set(broker.FieldResponseID, p.ResponseID)
		extra.Set(broker.FieldAddedResponse, p.AddedResponse)
		mayReserve := "0"
		if p.MayReserve {
			mayReserve = "1"
		}
		extra.Set(broker.FieldMayReserve, mayReserve)

		now := s.now()
		req.Replied = &now
		from, err := s.pushAction(ctx, req, method, broker.ActionResponse, extra)
		if err != nil {
			return types.Outcome{}, err
		}
		return types.Outcome{
			Stage: StageCommit,
			Value: map[string]any{"from": from, "status": req.Status},
		}, nil
	})
}

// SetStatusRead marks the request as read on the broker.
func (s *Service) SetStatusRead(ctx context.Context, requestID int64) types.Outcome {
	method := statusgraph.ActionSetStatusRead
	return s.run(ctx, method, requestID, Committing, func(ctx context.Context, req *types.Request) (types.Outcome, error) {
		if err := s.checkTransition(req, method); err != nil {
			return types.Outcome{}, err
		}
		from, err := s.pushAction(ctx, req, method, broker.ActionRead, nil)
		if err != nil {
			return types.Outcome{}, err
		}
		return types.Outcome{
			Stage: StageCommit,
			Value: map[string]any{"from": from, "status": req.Status},
		}, nil
	})
}

// Close releases the item, drops holds on the record and moves the request
// to its closing node.
func (s *Service) Close(ctx context.Context, requestID int64) types.Outcome {
	method := statusgraph.ActionClose
	return s.run(ctx, method, requestID, Committing, func(ctx context.Context, req *types.Request) (types.Outcome, error) {
		if err := s.requireIncoming(req, method); err != nil {
			return types.Outcome{}, err
		}
		if err := s.checkTransition(req, method); err != nil {
			return types.Outcome{}, err
		}

		if req.ItemID != 0 {
			item, err := s.store.GetItem(ctx, req.ItemID)
			if err != nil {
				return types.Outcome{}, fmt.Errorf("load item %d: %w", req.ItemID, err)
			}
			item.NotForLoan = true
			item.Barcode = ""
			item.ItemType = s.closedItemType
			if err := s.store.UpdateItem(ctx, item); err != nil {
				return types.Outcome{}, fmt.Errorf("update item %d: %w", item.ID, err)
			}
		}

		removed := 0
		if req.BiblioID != 0 {
			holds, err := s.store.SearchHolds(ctx, req.BiblioID)
			if err != nil {
				return types.Outcome{}, fmt.Errorf("search holds: %w", err)
			}
			for _, h := range holds {
				if err := s.store.DeleteHold(ctx, h.ID); err != nil {
					return types.Outcome{}, fmt.Errorf("delete hold %d: %w", h.ID, err)
				}
				removed++
			}
		}

		oldName := s.nodeName(req.Status)
		target := statusgraph.NodeID(req.Direction, statusgraph.CodeClosed)
		now := s.now()
		req.Completed = &now
		req.AppendNote(fmt.Sprintf("Status changed from %s to %s", oldName, s.nodeName(target)))
		s.setStatus(req, target, method)
		if err := s.store.UpdateRequest(ctx, req); err != nil {
			return types.Outcome{}, fmt.Errorf("save request %d: %w", req.ID, err)
		}
		return types.Outcome{
			Stage: StageCommit,
			Next:  types.ViewList,
			Value: map[string]any{"status": target, "holds_removed": removed},
		}, nil
	})
}

// Renew proposes a renewal. Nothing is persisted; the returned value carries
// the attribute view with status "Renewed".
func (s *Service) Renew(ctx context.Context, requestID int64) types.Outcome {
	method := statusgraph.ActionRenew
	return s.run(ctx, method, requestID, Committing, func(ctx context.Context, req *types.Request) (types.Outcome, error) {
		view, err := s.attrs.View(ctx, req.ID)
		if err != nil {
			return types.Outcome{}, err
		}
		status, ok := view[types.AttrStatus]
		if !ok || status == AttrValueOnOrder {
			return types.Outcome{}, fmt.Errorf("%w: request %d", ErrNotRenewed, req.ID)
		}
		value := viewValue(view)
		value[types.AttrStatus] = AttrValueRenewed
		return types.Outcome{Stage: StageCommit, Value: value}, nil
	})
}

// Cancel reverts the request locally. The broker is not told.
func (s *Service) Cancel(ctx context.Context, requestID int64) types.Outcome {
	method := statusgraph.ActionCancel
	return s.run(ctx, method, requestID, Committing, func(ctx context.Context, req *types.Request) (types.Outcome, error) {
		attr, err := s.attrs.Find(ctx, req.ID, types.AttrStatus)
		if err != nil {
			return types.Outcome{}, err
		}
		if attr == nil {
			return types.Outcome{}, fmt.Errorf("%w: request %d", ErrUnknownRequest, req.ID)
		}
		if err := s.checkTransition(req, method); err != nil {
			return types.Outcome{}, err
		}

		if err := s.attrs.Set(ctx, req.ID, types.AttrStatus, AttrValueReverted); err != nil {
			return types.Outcome{}, err
		}
		orderID := req.OrderID
		req.Cost = ""
		req.OrderID = ""
		s.setStatus(req, statusgraph.CancelledID, method)
		if err := s.store.UpdateRequest(ctx, req); err != nil {
			return types.Outcome{}, fmt.Errorf("save request %d: %w", req.ID, err)
		}
		return types.Outcome{
			Stage: StageCommit,
			Next:  types.ViewList,
			Value: map[string]any{"status": statusgraph.CancelledID, "order_id": orderID},
		}, nil
	})
}

// Status returns the attribute view in the form phase; the commit phase is a
// no-op completion.
func (s *Service) Status(ctx context.Context, requestID int64, p StatusParams) types.Outcome {
	method := statusgraph.ActionStatus
	return s.run(ctx, method, requestID, p.Phase, func(ctx context.Context, req *types.Request) (types.Outcome, error) {
		if p.Phase == Committing {
			return types.Outcome{Stage: StageCommit}, nil
		}
		view, err := s.attrs.View(ctx, req.ID)
		if err != nil {
			return types.Outcome{}, err
		}
		if _, ok := view[types.AttrStatus]; !ok {
			return types.Outcome{}, fmt.Errorf("%w: request %d", ErrUnknownRequest, req.ID)
		}
		value := viewValue(view)
		value["actions"] = s.graph.ActionsFrom(req.Status)
		return types.Outcome{Stage: method, Value: value}, nil
	})
}

// Refresh pulls the broker snapshot and merges it without acting.
func (s *Service) Refresh(ctx context.Context, requestID int64) types.Outcome {
	method := statusgraph.ActionRefresh
	return s.run(ctx, method, requestID, Committing, func(ctx context.Context, req *types.Request) (types.Outcome, error) {
		orderID, err := s.requireBroker(req)
		if err != nil {
			return types.Outcome{}, err
		}
		snap, err := s.broker.FetchRequestSnapshot(ctx, orderID)
		if err != nil {
			return types.Outcome{}, &brokerError{err}
		}
		from, err := s.merge(ctx, req, method, snap)
		if err != nil {
			return types.Outcome{}, err
		}
		return types.Outcome{
			Stage: StageCommit,
			Value: map[string]any{"from": from, "status": req.Status, "changed": from != req.Status},
		}, nil
	})
}

func viewValue(view map[string]string) map[string]any {
	value := make(map[string]any, len(view)+1)
	for k, v := range view {
		value[k] = v
	}
	return value
}

// IsBrokerFailure reports whether an outcome failed in the broker call.
func IsBrokerFailure(out types.Outcome) bool {
	return out.Error != 0 && out.Status == types.StatusBrokerError
}
