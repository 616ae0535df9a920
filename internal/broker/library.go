package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/steveyegge/illsync/internal/storage"
	"github.com/steveyegge/illsync/internal/types"
)

// LookupLibrary fetches sigil's library record from the broker and upserts
// it as a local partner. A known partner keeps its id and has its name and
// address refreshed.
func (c *Client) LookupLibrary(ctx context.Context, partners storage.PartnerStore, sigil string) (*types.Partner, error) {
	sigil = strings.TrimSpace(sigil)
	if sigil == "" {
		return nil, fmt.Errorf("library sigil is required")
	}

	known := true
	if _, err := partners.FindPartner(ctx, sigil); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("find partner %s: %w", sigil, err)
		}
		known = false
	}

	lib, err := c.FetchLibrary(ctx, sigil)
	if err != nil {
		return nil, err
	}
	p := PartnerFromLibrary(sigil, lib)
	if err := partners.UpsertPartner(ctx, p); err != nil {
		return nil, fmt.Errorf("store partner %s: %w", sigil, err)
	}
	if known {
		c.Logger.Debug("partner library refreshed", "sigil", sigil, "name", p.Name)
	} else {
		c.Logger.Info("partner library added", "sigil", sigil, "name", p.Name)
	}
	return p, nil
}

// PartnerFromLibrary maps a broker library record onto a partner.
func PartnerFromLibrary(sigil string, lib *Library) *types.Partner {
	return &types.Partner{
		Code:     sigil,
		Name:     lib.Name,
		Address1: lib.Address1,
		Address2: lib.Address2,
		Address3: lib.Address3,
		City:     lib.City,
		ZipCode:  lib.ZipCode,
	}
}
