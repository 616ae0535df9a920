// Package storage provides the persistence contract for ILL requests.
//
// Concrete implementations live in the memory and sqlstore sub-packages.
// Consumers (lifecycle, sweep, cmd/illsync) depend on this interface so
// that backends and decorators such as telemetry.WrapStorage can be swapped.
package storage

import (
	"context"
	"errors"

	"github.com/steveyegge/illsync/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique key (order id, partner code) is
// already taken.
var ErrDuplicate = errors.New("duplicate key")

// RequestStore is the request half of Storage.
type RequestStore interface {
	CreateRequest(ctx context.Context, r *types.Request) error
	GetRequest(ctx context.Context, id int64) (*types.Request, error)
	GetRequestByOrderID(ctx context.Context, orderID string) (*types.Request, error)
	UpdateRequest(ctx context.Context, r *types.Request) error
	ListRequests(ctx context.Context, filter types.RequestFilter) ([]*types.Request, error)
}

// AttributeStore persists request attributes as rows. Callers normally go
// through attrs.Store, which layers upsert semantics on top.
type AttributeStore interface {
	GetAttributes(ctx context.Context, requestID int64) ([]*types.Attribute, error)
	AddAttribute(ctx context.Context, a *types.Attribute) error
	UpdateAttribute(ctx context.Context, a *types.Attribute) error
}

// ItemStore persists the physical items attached to requests.
type ItemStore interface {
	CreateItem(ctx context.Context, it *types.Item) error
	GetItem(ctx context.Context, id int64) (*types.Item, error)
	UpdateItem(ctx context.Context, it *types.Item) error
}

// HoldStore persists reservations on bibliographic records.
type HoldStore interface {
	CreateHold(ctx context.Context, h *types.Hold) error
	SearchHolds(ctx context.Context, biblioID int64) ([]*types.Hold, error)
	DeleteHold(ctx context.Context, id int64) error
}

// PartnerStore persists partner libraries keyed by broker sigil.
type PartnerStore interface {
	FindPartner(ctx context.Context, code string) (*types.Partner, error)
	UpsertPartner(ctx context.Context, p *types.Partner) error
}

// Storage is everything the lifecycle needs from persistence.
type Storage interface {
	RequestStore
	AttributeStore
	ItemStore
	HoldStore
	PartnerStore

	Close() error
}
