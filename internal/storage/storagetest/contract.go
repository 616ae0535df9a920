// Package storagetest holds the behavioural tests every storage.Storage
// backend must pass.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/illsync/internal/storage"
	"github.com/steveyegge/illsync/internal/types"
)

// Factory opens a fresh, empty backend for one subtest.
type Factory func(t *testing.T) storage.Storage

// Run exercises the full storage contract against backends produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Storage)
	}{
		{"RequestRoundTrip", testRequestRoundTrip},
		{"RequestNotFound", testRequestNotFound},
		{"DuplicateOrderID", testDuplicateOrderID},
		{"UpdateRequest", testUpdateRequest},
		{"ListRequestsFilters", testListRequestsFilters},
		{"Attributes", testAttributes},
		{"Items", testItems},
		{"Holds", testHolds},
		{"Partners", testPartners},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func newRequest(orderID, status string, dir types.Direction) *types.Request {
	placed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &types.Request{
		OrderID:   orderID,
		Status:    status,
		Direction: dir,
		BiblioID:  7,
		Branch:    "MAIN",
		Placed:    &placed,
		Cost:      "0",
		Backend:   "Libris",
	}
}

func testRequestRoundTrip(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	r := newRequest("1001", "IN_NY", types.DirectionIncoming)
	require.NoError(t, s.CreateRequest(ctx, r))
	require.NotZero(t, r.ID)

	got, err := s.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "1001", got.OrderID)
	assert.Equal(t, "IN_NY", got.Status)
	assert.Equal(t, types.DirectionIncoming, got.Direction)
	assert.Equal(t, int64(7), got.BiblioID)
	require.NotNil(t, got.Placed)
	assert.True(t, r.Placed.Equal(*got.Placed))
	assert.Nil(t, got.Completed)

	byOrder, err := s.GetRequestByOrderID(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, r.ID, byOrder.ID)

	// Returned records are copies.
	got.Status = "IN_LAST"
	again, err := s.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "IN_NY", again.Status)
}

func testRequestNotFound(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_, err := s.GetRequest(ctx, 4242)
	assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	_, err = s.GetRequestByOrderID(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	err = s.UpdateRequest(ctx, &types.Request{ID: 4242, Status: "IN_NY", Direction: types.DirectionIncoming, Backend: "Libris"})
	assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
}

func testDuplicateOrderID(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	require.NoError(t, s.CreateRequest(ctx, newRequest("2002", "IN_NY", types.DirectionIncoming)))
	err := s.CreateRequest(ctx, newRequest("2002", "IN_NY", types.DirectionIncoming))
	assert.True(t, errors.Is(err, storage.ErrDuplicate), "got %v", err)

	// Cancelled requests have no order id; several may coexist.
	require.NoError(t, s.CreateRequest(ctx, newRequest("", "REQREV", types.DirectionOutgoing)))
	require.NoError(t, s.CreateRequest(ctx, newRequest("", "REQREV", types.DirectionOutgoing)))
}

func testUpdateRequest(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	r := newRequest("3003", "IN_ANK", types.DirectionIncoming)
	require.NoError(t, s.CreateRequest(ctx, r))

	done := time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)
	r.Status = "IN_AVSL"
	r.Completed = &done
	r.AppendNote("Status changed from Arrived to Closed")
	r.OrderID = ""
	r.Cost = ""
	require.NoError(t, s.UpdateRequest(ctx, r))

	got, err := s.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "IN_AVSL", got.Status)
	assert.Equal(t, "", got.OrderID)
	assert.Equal(t, "", got.Cost)
	assert.Contains(t, got.Notes, "Arrived to Closed")
	require.NotNil(t, got.Completed)
	assert.True(t, done.Equal(*got.Completed))
}

func testListRequestsFilters(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	for _, r := range []*types.Request{
		newRequest("a", "IN_NY", types.DirectionIncoming),
		newRequest("b", "IN_LAST", types.DirectionIncoming),
		newRequest("c", "OUT_LEV", types.DirectionOutgoing),
		newRequest("d", "IN_AVSL", types.DirectionIncoming),
	} {
		require.NoError(t, s.CreateRequest(ctx, r))
	}

	all, err := s.ListRequests(ctx, types.RequestFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	byStatus, err := s.ListRequests(ctx, types.RequestFilter{Status: "IN_LAST"})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "b", byStatus[0].OrderID)

	incoming, err := s.ListRequests(ctx, types.RequestFilter{
		Direction: types.DirectionIncoming,
		Exclude:   []string{"IN_AVSL"},
		Sort:      []types.RequestSortOption{{Field: types.SortFieldOrderID, Direction: types.SortAsc}},
	})
	require.NoError(t, err)
	require.Len(t, incoming, 2)
	assert.Equal(t, "a", incoming[0].OrderID)
	assert.Equal(t, "b", incoming[1].OrderID)

	limited, err := s.ListRequests(ctx, types.RequestFilter{
		Limit: 1,
		Sort:  []types.RequestSortOption{{Field: types.SortFieldOrderID, Direction: types.SortDesc}},
	})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "d", limited[0].OrderID)
}

func testAttributes(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	r := newRequest("4004", "IN_NY", types.DirectionIncoming)
	require.NoError(t, s.CreateRequest(ctx, r))

	title := &types.Attribute{RequestID: r.ID, Type: types.AttrTitle, Value: "Röda rummet"}
	require.NoError(t, s.AddAttribute(ctx, title))
	require.NotZero(t, title.ID)
	require.NoError(t, s.AddAttribute(ctx, &types.Attribute{RequestID: r.ID, Type: types.AttrAuthor, Value: "Strindberg"}))

	attrs, err := s.GetAttributes(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, types.AttrTitle, attrs[0].Type, "insertion order is preserved")

	title.Value = "Hemsöborna"
	require.NoError(t, s.UpdateAttribute(ctx, title))
	attrs, err = s.GetAttributes(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hemsöborna", attrs[0].Value)

	none, err := s.GetAttributes(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, none)

	err = s.UpdateAttribute(ctx, &types.Attribute{ID: 999, RequestID: r.ID, Type: "x"})
	assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
}

func testItems(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	it := &types.Item{BiblioID: 7, Barcode: "B1", ItemType: "ILL"}
	require.NoError(t, s.CreateItem(ctx, it))
	require.NotZero(t, it.ID)

	it.Barcode = ""
	it.NotForLoan = true
	it.ItemType = "ILL-CLOSED"
	require.NoError(t, s.UpdateItem(ctx, it))

	got, err := s.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "", got.Barcode)
	assert.True(t, got.NotForLoan)
	assert.Equal(t, "ILL-CLOSED", got.ItemType)

	_, err = s.GetItem(ctx, 999)
	assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
}

func testHolds(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	h1 := &types.Hold{BiblioID: 7, PatronID: 1}
	h2 := &types.Hold{BiblioID: 7, PatronID: 2}
	other := &types.Hold{BiblioID: 8, PatronID: 3}
	for _, h := range []*types.Hold{h1, h2, other} {
		require.NoError(t, s.CreateHold(ctx, h))
	}

	holds, err := s.SearchHolds(ctx, 7)
	require.NoError(t, err)
	require.Len(t, holds, 2)

	require.NoError(t, s.DeleteHold(ctx, h1.ID))
	holds, err = s.SearchHolds(ctx, 7)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, h2.ID, holds[0].ID)

	err = s.DeleteHold(ctx, h1.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
}

func testPartners(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_, err := s.FindPartner(ctx, "Z")
	assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)

	p := &types.Partner{Code: "Z", Name: "Stockholms universitetsbibliotek", City: "Stockholm"}
	require.NoError(t, s.UpsertPartner(ctx, p))
	firstID := p.ID
	require.NotZero(t, firstID)

	p2 := &types.Partner{Code: "Z", Name: "SUB", City: "Stockholm", ZipCode: "10691"}
	require.NoError(t, s.UpsertPartner(ctx, p2))
	assert.Equal(t, firstID, p2.ID, "upsert keeps the id")

	got, err := s.FindPartner(ctx, "Z")
	require.NoError(t, err)
	assert.Equal(t, "SUB", got.Name)
	assert.Equal(t, "10691", got.ZipCode)
}
