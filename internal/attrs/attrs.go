// Package attrs manages the typed key/value facts attached to a request.
package attrs

import (
	"context"
	"fmt"

	"github.com/steveyegge/illsync/internal/storage"
	"github.com/steveyegge/illsync/internal/types"
)

// Mode selects how Upsert treats an existing attribute of the same type.
type Mode string

const (
	// ModeUpsert updates the first attribute of the type in place.
	ModeUpsert Mode = "upsert"
	// ModeAppend always adds a new row. Lookups still read the first match,
	// so later values are shadowed; kept for databases written that way.
	ModeAppend Mode = "append"
)

// ParseMode accepts "upsert" and "append"; empty means upsert.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeUpsert:
		return ModeUpsert, nil
	case ModeAppend:
		return ModeAppend, nil
	}
	return "", fmt.Errorf("invalid attribute mode %q (valid: upsert, append)", s)
}

// Store layers attribute semantics over storage.AttributeStore.
type Store struct {
	backend storage.AttributeStore
	mode    Mode
}

// New returns a Store over backend.
func New(backend storage.AttributeStore, mode Mode) *Store {
	if mode == "" {
		mode = ModeUpsert
	}
	return &Store{backend: backend, mode: mode}
}

// Mode reports the configured write mode.
func (s *Store) Mode() Mode {
	return s.mode
}

// Find returns the first attribute of typ for the request, or nil when there is none.
func (s *Store) Find(ctx context.Context, requestID int64, typ string) (*types.Attribute, error) {
	all, err := s.backend.GetAttributes(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load attributes for request %d: %w", requestID, err)
	}
	for _, a := range all {
		if a.Type == typ {
			return a, nil
		}
	}
	return nil, nil
}

// Value returns the value of the first attribute of typ, or "" when absent.
func (s *Store) Value(ctx context.Context, requestID int64, typ string) (string, error) {
	a, err := s.Find(ctx, requestID, typ)
	if err != nil || a == nil {
		return "", err
	}
	return a.Value, nil
}

// Upsert writes value for typ according to the store mode.
func (s *Store) Upsert(ctx context.Context, requestID int64, typ, value string) error {
	if s.mode == ModeUpsert {
		return s.Set(ctx, requestID, typ, value)
	}
	if typ == "" {
		return fmt.Errorf("attribute type is required")
	}
	if err := s.backend.AddAttribute(ctx, &types.Attribute{RequestID: requestID, Type: typ, Value: value}); err != nil {
		return fmt.Errorf("add attribute %s: %w", typ, err)
	}
	return nil
}

// Set updates the first attribute of typ in place, adding it when absent,
// whatever the store mode. Protocol bookkeeping (status, last_modified) is
// written this way so lookups always see the latest value.
func (s *Store) Set(ctx context.Context, requestID int64, typ, value string) error {
	if typ == "" {
		return fmt.Errorf("attribute type is required")
	}
	existing, err := s.Find(ctx, requestID, typ)
	if err != nil {
		return err
	}
	if existing == nil {
		if err := s.backend.AddAttribute(ctx, &types.Attribute{RequestID: requestID, Type: typ, Value: value}); err != nil {
			return fmt.Errorf("add attribute %s: %w", typ, err)
		}
		return nil
	}
	if existing.Value == value {
		return nil
	}
	existing.Value = value
	if err := s.backend.UpdateAttribute(ctx, existing); err != nil {
		return fmt.Errorf("update attribute %s: %w", typ, err)
	}
	return nil
}

// UpsertAll writes every entry of values.
func (s *Store) UpsertAll(ctx context.Context, requestID int64, values map[string]string) error {
	for typ, value := range values {
		if err := s.Upsert(ctx, requestID, typ, value); err != nil {
			return err
		}
	}
	return nil
}

// AllFor returns every attribute of the request in storage order.
func (s *Store) AllFor(ctx context.Context, requestID int64) ([]*types.Attribute, error) {
	all, err := s.backend.GetAttributes(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load attributes for request %d: %w", requestID, err)
	}
	return all, nil
}

// View flattens the attributes into a map, first value per type winning.
func (s *Store) View(ctx context.Context, requestID int64) (map[string]string, error) {
	all, err := s.AllFor(ctx, requestID)
	if err != nil {
		return nil, err
	}
	view := make(map[string]string, len(all))
	for _, a := range all {
		if _, seen := view[a.Type]; !seen {
			view[a.Type] = a.Value
		}
	}
	return view, nil
}
