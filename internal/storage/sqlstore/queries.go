package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/steveyegge/illsync/internal/types"
)

const requestColumns = `id, order_id, status, direction, biblio_id, item_id, patron_id, partner_id,
    branch, placed, replied, completed, updated, cost, backend, medium, notes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*types.Request, error) {
	var (
		r                                  types.Request
		orderID, notes                     sql.NullString
		placed, replied, completed, update nullTime
		direction                          string
	)
	if err := row.Scan(&r.ID, &orderID, &r.Status, &direction, &r.BiblioID, &r.ItemID, &r.PatronID, &r.PartnerID,
		&r.Branch, &placed, &replied, &completed, &update, &r.Cost, &r.Backend, &r.Medium, &notes); err != nil {
		return nil, err
	}
	r.OrderID = orderID.String
	r.Notes = notes.String
	r.Direction = types.Direction(direction)
	r.Placed, r.Replied, r.Completed = placed.t, replied.t, completed.t
	if update.t != nil {
		r.Updated = *update.t
	}
	return &r, nil
}

// ── Requests ────────────────────────────────────────────────────────────────

func (s *Store) CreateRequest(ctx context.Context, r *types.Request) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	r.Updated = s.now().UTC()
	id, err := s.insert(ctx, `INSERT INTO ill_requests (order_id, status, direction, biblio_id, item_id, patron_id,
    partner_id, branch, placed, replied, completed, updated, cost, backend, medium, notes)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullIfEmpty(r.OrderID), r.Status, string(r.Direction), r.BiblioID, r.ItemID, r.PatronID,
		r.PartnerID, r.Branch, s.d.timeArg(r.Placed), s.d.timeArg(r.Replied), s.d.timeArg(r.Completed),
		s.d.timeArg(&r.Updated), r.Cost, r.Backend, r.Medium, r.Notes)
	if err != nil {
		return wrapDBError(err, "create request %s", r.OrderID)
	}
	r.ID = id
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id int64) (*types.Request, error) {
	var r *types.Request
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		var scanErr error
		r, scanErr = scanRequest(row)
		return scanErr
	}, `SELECT `+requestColumns+` FROM ill_requests WHERE id = ?`, id)
	if err != nil {
		return nil, wrapDBError(err, "get request %d", id)
	}
	return r, nil
}

func (s *Store) GetRequestByOrderID(ctx context.Context, orderID string) (*types.Request, error) {
	var r *types.Request
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		var scanErr error
		r, scanErr = scanRequest(row)
		return scanErr
	}, `SELECT `+requestColumns+` FROM ill_requests WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, wrapDBError(err, "get request by order %s", orderID)
	}
	return r, nil
}

func (s *Store) UpdateRequest(ctx context.Context, r *types.Request) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	r.Updated = s.now().UTC()
	res, err := s.execContext(ctx, `UPDATE ill_requests SET order_id = ?, status = ?, direction = ?, biblio_id = ?,
    item_id = ?, patron_id = ?, partner_id = ?, branch = ?, placed = ?, replied = ?, completed = ?, updated = ?,
    cost = ?, backend = ?, medium = ?, notes = ? WHERE id = ?`,
		nullIfEmpty(r.OrderID), r.Status, string(r.Direction), r.BiblioID, r.ItemID, r.PatronID, r.PartnerID,
		r.Branch, s.d.timeArg(r.Placed), s.d.timeArg(r.Replied), s.d.timeArg(r.Completed), s.d.timeArg(&r.Updated),
		r.Cost, r.Backend, r.Medium, r.Notes, r.ID)
	if err != nil {
		return wrapDBError(err, "update request %d", r.ID)
	}
	return s.requireRow(ctx, res, "ill_requests", r.ID)
}

// requireRow maps "no rows affected" to ErrNotFound. mysql reports zero
// affected rows for no-op updates, so existence is checked explicitly.
func (s *Store) requireRow(ctx context.Context, res sql.Result, table string, id int64) error {
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	var one int
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&one)
	}, `SELECT 1 FROM `+table+` WHERE id = ?`, id)
	return wrapDBError(err, "%s %d", strings.TrimSuffix(table, "s"), id)
}

var sortColumns = map[types.RequestSortField]string{
	types.SortFieldUpdated: "updated",
	types.SortFieldPlaced:  "placed",
	types.SortFieldStatus:  "status",
	types.SortFieldOrderID: "order_id",
}

func (s *Store) ListRequests(ctx context.Context, filter types.RequestFilter) ([]*types.Request, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Direction != "" {
		where = append(where, "direction = ?")
		args = append(args, string(filter.Direction))
	}
	if len(filter.Exclude) > 0 {
		where = append(where, "status NOT IN (?"+strings.Repeat(", ?", len(filter.Exclude)-1)+")")
		for _, st := range filter.Exclude {
			args = append(args, st)
		}
	}

	query := `SELECT ` + requestColumns + ` FROM ill_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	opts := filter.Sort
	if len(opts) == 0 {
		opts = types.DefaultRequestSortOptions()
	}
	var order []string
	for _, opt := range opts {
		col, ok := sortColumns[opt.Field]
		if !ok {
			continue
		}
		dir := "ASC"
		if opt.Direction == types.SortDesc {
			dir = "DESC"
		}
		order = append(order, col+" "+dir)
	}
	order = append(order, "id ASC")
	query += " ORDER BY " + strings.Join(order, ", ")
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError(err, "list requests")
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, wrapDBError(err, "scan request")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ── Attributes ──────────────────────────────────────────────────────────────

func (s *Store) GetAttributes(ctx context.Context, requestID int64) ([]*types.Attribute, error) {
	rows, err := s.queryContext(ctx,
		`SELECT id, request_id, attr_type, value FROM ill_request_attributes WHERE request_id = ? ORDER BY id`, requestID)
	if err != nil {
		return nil, wrapDBError(err, "get attributes for %d", requestID)
	}
	defer func() { _ = rows.Close() }()

	out := []*types.Attribute{}
	for rows.Next() {
		var a types.Attribute
		if err := rows.Scan(&a.ID, &a.RequestID, &a.Type, &a.Value); err != nil {
			return nil, wrapDBError(err, "scan attribute")
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *Store) AddAttribute(ctx context.Context, a *types.Attribute) error {
	if _, err := s.GetRequest(ctx, a.RequestID); err != nil {
		return err
	}
	id, err := s.insert(ctx, `INSERT INTO ill_request_attributes (request_id, attr_type, value) VALUES (?, ?, ?)`,
		a.RequestID, a.Type, a.Value)
	if err != nil {
		return wrapDBError(err, "add attribute %s", a.Type)
	}
	a.ID = id
	return nil
}

func (s *Store) UpdateAttribute(ctx context.Context, a *types.Attribute) error {
	res, err := s.execContext(ctx,
		`UPDATE ill_request_attributes SET attr_type = ?, value = ? WHERE id = ? AND request_id = ?`,
		a.Type, a.Value, a.ID, a.RequestID)
	if err != nil {
		return wrapDBError(err, "update attribute %d", a.ID)
	}
	return s.requireRow(ctx, res, "ill_request_attributes", a.ID)
}

// ── Items ───────────────────────────────────────────────────────────────────

func (s *Store) CreateItem(ctx context.Context, it *types.Item) error {
	id, err := s.insert(ctx, `INSERT INTO items (biblio_id, barcode, not_for_loan, item_type) VALUES (?, ?, ?, ?)`,
		it.BiblioID, nullIfEmpty(it.Barcode), it.NotForLoan, it.ItemType)
	if err != nil {
		return wrapDBError(err, "create item")
	}
	it.ID = id
	return nil
}

func (s *Store) GetItem(ctx context.Context, id int64) (*types.Item, error) {
	var (
		it      types.Item
		barcode sql.NullString
	)
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&it.ID, &it.BiblioID, &barcode, &it.NotForLoan, &it.ItemType)
	}, `SELECT id, biblio_id, barcode, not_for_loan, item_type FROM items WHERE id = ?`, id)
	if err != nil {
		return nil, wrapDBError(err, "get item %d", id)
	}
	it.Barcode = barcode.String
	return &it, nil
}

func (s *Store) UpdateItem(ctx context.Context, it *types.Item) error {
	res, err := s.execContext(ctx,
		`UPDATE items SET biblio_id = ?, barcode = ?, not_for_loan = ?, item_type = ? WHERE id = ?`,
		it.BiblioID, nullIfEmpty(it.Barcode), it.NotForLoan, it.ItemType, it.ID)
	if err != nil {
		return wrapDBError(err, "update item %d", it.ID)
	}
	return s.requireRow(ctx, res, "items", it.ID)
}

// ── Holds ───────────────────────────────────────────────────────────────────

func (s *Store) CreateHold(ctx context.Context, h *types.Hold) error {
	if h.Placed.IsZero() {
		h.Placed = s.now().UTC()
	}
	id, err := s.insert(ctx, `INSERT INTO holds (biblio_id, patron_id, placed) VALUES (?, ?, ?)`,
		h.BiblioID, h.PatronID, s.d.timeArg(&h.Placed))
	if err != nil {
		return wrapDBError(err, "create hold")
	}
	h.ID = id
	return nil
}

func (s *Store) SearchHolds(ctx context.Context, biblioID int64) ([]*types.Hold, error) {
	rows, err := s.queryContext(ctx,
		`SELECT id, biblio_id, patron_id, placed FROM holds WHERE biblio_id = ? ORDER BY id`, biblioID)
	if err != nil {
		return nil, wrapDBError(err, "search holds for biblio %d", biblioID)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Hold
	for rows.Next() {
		var (
			h      types.Hold
			placed nullTime
		)
		if err := rows.Scan(&h.ID, &h.BiblioID, &h.PatronID, &placed); err != nil {
			return nil, wrapDBError(err, "scan hold")
		}
		if placed.t != nil {
			h.Placed = *placed.t
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (s *Store) DeleteHold(ctx context.Context, id int64) error {
	res, err := s.execContext(ctx, `DELETE FROM holds WHERE id = ?`, id)
	if err != nil {
		return wrapDBError(err, "delete hold %d", id)
	}
	return s.requireRow(ctx, res, "holds", id)
}

// ── Partners ────────────────────────────────────────────────────────────────

func (s *Store) FindPartner(ctx context.Context, code string) (*types.Partner, error) {
	var p types.Partner
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&p.ID, &p.Code, &p.Name, &p.Address1, &p.Address2, &p.Address3, &p.City, &p.ZipCode)
	}, `SELECT id, code, name, address1, address2, address3, city, zip_code FROM partners WHERE code = ?`, code)
	if err != nil {
		return nil, wrapDBError(err, "find partner %s", code)
	}
	return &p, nil
}

func (s *Store) UpsertPartner(ctx context.Context, p *types.Partner) error {
	if p.Code == "" {
		return fmt.Errorf("partner code is required")
	}
	existing, err := s.FindPartner(ctx, p.Code)
	if err == nil {
		p.ID = existing.ID
		_, err = s.execContext(ctx, `UPDATE partners SET name = ?, address1 = ?, address2 = ?, address3 = ?,
    city = ?, zip_code = ? WHERE id = ?`,
			p.Name, p.Address1, p.Address2, p.Address3, p.City, p.ZipCode, p.ID)
		return wrapDBError(err, "update partner %s", p.Code)
	}
	id, err := s.insert(ctx, `INSERT INTO partners (code, name, address1, address2, address3, city, zip_code)
    VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Code, p.Name, p.Address1, p.Address2, p.Address3, p.City, p.ZipCode)
	if err != nil {
		return wrapDBError(err, "insert partner %s", p.Code)
	}
	p.ID = id
	return nil
}
