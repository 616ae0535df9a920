package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// IsPlaceholder reports whether bibID was minted locally.
func IsPlaceholder(bibID string) bool {
	return strings.HasPrefix(bibID, PlaceholderPrefix)
}

// FetchBibliographicSource returns the catalog record for bibID.
//
// Placeholder ids never reach the catalog; the record is synthesized from
// fallback (normally SourceRecordFromRequest). For real ids a catalog miss
// returns (nil, nil).
func (c *Client) FetchBibliographicSource(ctx context.Context, bibID string, fallback SourceRecord) (_ *SourceRecord, err error) {
	if bibID == "" {
		return nil, fmt.Errorf("bibliographic id is required")
	}
	if IsPlaceholder(bibID) {
		rec := fallback
		rec.ID = bibID
		rec.Synthetic = true
		return &rec, nil
	}

	ctx, span := c.span(ctx, "FetchBibliographicSource", attribute.String("ill.bib_id", bibID))
	defer func() { endSpan(span, err) }()

	q := url.Values{}
	q.Set("query", "ONR:"+bibID)
	q.Set("format", "json")
	q.Set("n", "1")
	body, err := c.get(ctx, c.CatalogURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp xsearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse catalog response: %w", err)
	}
	if len(resp.XSearch.List) == 0 {
		return nil, nil
	}
	hit := resp.XSearch.List[0]
	return &SourceRecord{
		ID:        bibID,
		Title:     hit.Title,
		Author:    hit.Creator,
		ISBN:      hit.ISBN,
		Imprint:   hit.Publisher,
		Year:      hit.Date,
		MediaType: hit.Type,
	}, nil
}
