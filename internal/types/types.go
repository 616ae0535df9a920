// Package types defines core data structures for the illsync request tracker.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Request represents an interlibrary-loan order mirrored against the broker.
type Request struct {
	ID        int64      `json:"id"`
	OrderID   string     `json:"orderid,omitempty"` // Broker-assigned order id (empty after cancel)
	Status    string     `json:"status"`            // StatusGraph node id, e.g. "IN_LAST"
	Direction Direction  `json:"direction"`
	BiblioID  int64      `json:"biblio_id,omitempty"`
	ItemID    int64      `json:"item_id,omitempty"`
	PatronID  int64      `json:"patron_id,omitempty"`
	Branch    string     `json:"branch,omitempty"`
	PartnerID int64      `json:"partner_id,omitempty"` // Local partner record for the other library
	Placed    *time.Time `json:"placed,omitempty"`
	Replied   *time.Time `json:"replied,omitempty"`
	Completed *time.Time `json:"completed,omitempty"`
	Updated   time.Time  `json:"updated"`
	Cost      string     `json:"cost,omitempty"`
	Backend   string     `json:"backend"`
	Medium    string     `json:"medium,omitempty"`
	Notes     string     `json:"notes,omitempty"` // Staff notes; close appends audit lines here
}

// Validate checks that the request carries the fields every backend relies on.
func (r *Request) Validate() error {
	if r.Backend == "" {
		return fmt.Errorf("backend is required")
	}
	if r.Status == "" {
		return fmt.Errorf("status is required")
	}
	if !r.Direction.IsValid() {
		return fmt.Errorf("invalid direction: %q", r.Direction)
	}
	return nil
}

// AppendNote adds a line to the staff notes, keeping earlier lines intact.
func (r *Request) AppendNote(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if r.Notes == "" {
		r.Notes = line
		return
	}
	r.Notes = r.Notes + "\n" + line
}

// Direction tells whether the local library lends (IN) or borrows (OUT).
type Direction string

// Direction constants; the values double as status-code prefixes.
const (
	DirectionIncoming Direction = "IN"
	DirectionOutgoing Direction = "OUT"
)

// IsValid reports whether d is one of the known directions.
func (d Direction) IsValid() bool {
	return d == DirectionIncoming || d == DirectionOutgoing
}

// ParseDirection accepts "in", "incoming", "out", "outgoing" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in", "incoming":
		return DirectionIncoming, nil
	case "out", "outgoing":
		return DirectionOutgoing, nil
	}
	return "", fmt.Errorf("invalid direction %q (valid: in, out)", s)
}

// DirectionOf returns the direction encoded in a status code prefix.
// Unprefixed codes (the cancellation node) report false.
func DirectionOf(statusCode string) (Direction, bool) {
	switch {
	case strings.HasPrefix(statusCode, string(DirectionIncoming)+"_"):
		return DirectionIncoming, true
	case strings.HasPrefix(statusCode, string(DirectionOutgoing)+"_"):
		return DirectionOutgoing, true
	}
	return "", false
}

// Attribute is a single typed fact attached to a request.
type Attribute struct {
	ID        int64  `json:"id"`
	RequestID int64  `json:"request_id"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

// Well-known attribute types. The vocabulary is open; these are the ones the
// lifecycle reads or writes itself.
const (
	AttrTitle        = "title"
	AttrAuthor       = "author"
	AttrMediaType    = "media_type"
	AttrISBNISSN     = "isbn_issn"
	AttrImprint      = "imprint"
	AttrYear         = "year"
	AttrDueDateGuar  = "due_date_guar"
	AttrDueDateMax   = "due_date_max"
	AttrLastModified = "last_modified"
	AttrStatus       = "status"
	AttrBrokerStatus = "broker_status"
	AttrBibID        = "bib_id"
	AttrLFNumber     = "lf_number"
	AttrUser         = "user"
	AttrLibrary      = "library"
	AttrMessage      = "message"
)

// Item is the physical copy circulating for a request.
type Item struct {
	ID         int64  `json:"id"`
	BiblioID   int64  `json:"biblio_id"`
	Barcode    string `json:"barcode,omitempty"`
	NotForLoan bool   `json:"notforloan"`
	ItemType   string `json:"itype,omitempty"`
}

// Hold is a reservation on a bibliographic record.
type Hold struct {
	ID       int64     `json:"id"`
	BiblioID int64     `json:"biblio_id"`
	PatronID int64     `json:"patron_id"`
	Placed   time.Time `json:"placed"`
}

// Partner is the local record of another library known to the broker.
type Partner struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"` // Broker library sigil
	Name     string `json:"name"`
	Address1 string `json:"address1,omitempty"`
	Address2 string `json:"address2,omitempty"`
	Address3 string `json:"address3,omitempty"`
	City     string `json:"city,omitempty"`
	ZipCode  string `json:"zipcode,omitempty"`
}

// RequestFilter narrows ListRequests results.
type RequestFilter struct {
	Status    string    // Exact status code, empty = any
	Direction Direction // Empty = both
	Exclude   []string  // Status codes to leave out
	Limit     int
	Sort      []RequestSortOption
}
