package broker

import (
	"sort"
	"strings"

	"github.com/steveyegge/illsync/internal/statusgraph"
	"github.com/steveyegge/illsync/internal/types"
)

// rawStatusCodes maps the broker's Swedish status strings to short codes.
var rawStatusCodes = map[string]string{
	"Ny":             statusgraph.CodeNew,
	"Läst":           statusgraph.CodeRead,
	"Väntar":         statusgraph.CodeWaiting,
	"Reserverad":     statusgraph.CodeReserved,
	"Kan reserveras": statusgraph.CodeMayReserve,
	"Negativt svar":  statusgraph.CodeNegative,
	"Levererad":      statusgraph.CodeDelivered,
	"Uteliggande":    statusgraph.CodeOutstanding,
	"Makulerad":      statusgraph.CodeVoided,
	"Mottagen":       statusgraph.CodeReceived,
	"Kommentar":      statusgraph.CodeComment,
	"Returnerad":     statusgraph.CodeReturned,
}

// Translator maps raw broker statuses to status graph node ids.
type Translator struct {
	codes map[string]string
}

// NewTranslator returns a translator over the built-in table.
func NewTranslator() *Translator {
	return &Translator{codes: rawStatusCodes}
}

// Translate returns direction + "_" + code for a known raw status. Raw
// strings are matched after trimming surrounding whitespace.
func (t *Translator) Translate(raw string, dir types.Direction) (string, error) {
	code, ok := t.codes[strings.TrimSpace(raw)]
	if !ok || !dir.IsValid() {
		return "", &UnmappedStatusError{Raw: raw, Direction: dir}
	}
	return statusgraph.NodeID(dir, code), nil
}

// Known returns the raw statuses the translator accepts, sorted.
func (t *Translator) Known() []string {
	out := make([]string, 0, len(t.codes))
	for raw := range t.codes {
		out = append(out, raw)
	}
	sort.Strings(out)
	return out
}
