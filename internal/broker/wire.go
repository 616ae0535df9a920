package broker

import (
	"strings"

	"github.com/steveyegge/illsync/internal/types"
)

// Action is a broker-side mutation name sent as the "action" form field.
type Action string

const (
	ActionRead     Action = "read"
	ActionResponse Action = "response"
)

// Form fields accepted alongside ActionResponse.
const (
	FieldResponseID    = "response_id"
	FieldAddedResponse = "added_response"
	FieldMayReserve    = "may_reserve"
)

// ResponseOption is one answer a lender can give with ActionResponse.
type ResponseOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ResponseOptions lists the response_id values the broker accepts.
var ResponseOptions = []ResponseOption{
	{ID: "1", Label: "Levererad"},
	{ID: "2", Label: "Negativt svar"},
	{ID: "3", Label: "Reserverad"},
	{ID: "4", Label: "Kan reserveras"},
	{ID: "5", Label: "Väntar"},
}

// IsResponseID reports whether id is one of ResponseOptions.
func IsResponseID(id string) bool {
	for _, o := range ResponseOptions {
		if o.ID == id {
			return true
		}
	}
	return false
}

// LibraryRef is the short library reference embedded in a request.
type LibraryRef struct {
	LibraryCode string `json:"library_code"`
	Name        string `json:"name"`
}

// ILLRequest is one element of the broker's ill_requests array.
type ILLRequest struct {
	RequestID        string     `json:"request_id"`
	LFNumber         string     `json:"lf_number"`
	Status           string     `json:"status"`
	LastModified     string     `json:"last_modified"`
	BibID            string     `json:"bib_id"`
	Title            string     `json:"title"`
	Author           string     `json:"author"`
	Imprint          string     `json:"imprint"`
	ISBNISSN         string     `json:"isbn_issn"`
	MediaType        string     `json:"media_type"`
	Year             string     `json:"year"`
	User             string     `json:"user"`
	UserID           string     `json:"user_id"`
	Message          string     `json:"message"`
	ReceivingLibrary LibraryRef `json:"receiving_library"`
	LendingLibrary   LibraryRef `json:"lending_library"`
}

// Attributes returns the request's descriptive fields keyed by attribute
// type, skipping empty values.
func (r *ILLRequest) Attributes() map[string]string {
	all := map[string]string{
		types.AttrTitle:        r.Title,
		types.AttrAuthor:       r.Author,
		types.AttrImprint:      r.Imprint,
		types.AttrISBNISSN:     r.ISBNISSN,
		types.AttrMediaType:    r.MediaType,
		types.AttrYear:         r.Year,
		types.AttrUser:         r.User,
		types.AttrBibID:        r.BibID,
		types.AttrLFNumber:     r.LFNumber,
		types.AttrLastModified: r.LastModified,
		types.AttrStatus:       r.Status,
		types.AttrMessage:      r.Message,
	}
	out := make(map[string]string, len(all))
	for k, v := range all {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	return out
}

// PartnerSigil returns the sigil of the library on the other side of the
// loan for the given direction.
func (r *ILLRequest) PartnerSigil(dir types.Direction) string {
	if dir == types.DirectionIncoming {
		return r.ReceivingLibrary.LibraryCode
	}
	return r.LendingLibrary.LibraryCode
}

type requestsResponse struct {
	Count       int          `json:"count"`
	ILLRequests []ILLRequest `json:"ill_requests"`
}

// Library is a broker library record.
type Library struct {
	Name     string `json:"name"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	Address3 string `json:"address3"`
	City     string `json:"city"`
	ZipCode  string `json:"zip_code"`
}

type librariesResponse struct {
	Libraries []Library `json:"libraries"`
}

// Snapshot is the part of a broker request that drives synchronization.
type Snapshot struct {
	RawStatus    string
	LastModified string
	Request      *ILLRequest
}

func snapshotOf(r *ILLRequest) *Snapshot {
	return &Snapshot{RawStatus: r.Status, LastModified: r.LastModified, Request: r}
}

// SourceRecord is the minimal bibliographic data needed to build a local record.
type SourceRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	ISBN      string `json:"isbn"`
	Imprint   string `json:"imprint,omitempty"`
	Year      string `json:"year,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Synthetic bool   `json:"synthetic,omitempty"` // built from request fields, not the catalog
}

// SourceRecordFromRequest builds a fallback record from request fields.
func SourceRecordFromRequest(r *ILLRequest) SourceRecord {
	return SourceRecord{
		ID:        r.BibID,
		Title:     r.Title,
		Author:    r.Author,
		ISBN:      r.ISBNISSN,
		Imprint:   r.Imprint,
		Year:      r.Year,
		MediaType: r.MediaType,
	}
}

type xsearchResponse struct {
	XSearch struct {
		Records int `json:"records"`
		List    []struct {
			Identifier string `json:"identifier"`
			Title      string `json:"title"`
			Creator    string `json:"creator"`
			ISBN       string `json:"isbn"`
			Publisher  string `json:"publisher"`
			Date       string `json:"date"`
			Type       string `json:"type"`
		} `json:"list"`
	} `json:"xsearch"`
}
