package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/steveyegge/illsync/internal/broker"
	"github.com/steveyegge/illsync/internal/lifecycle"
	"github.com/steveyegge/illsync/internal/types"
)

// attrBibSource records where the bibliographic fields came from.
const attrBibSource = "bib_source"

var importCmd = &cobra.Command{
	Use:   "import ORDER_ID",
	Short: "Create a local request from a broker order",
	Long: `Fetch an order from the broker, resolve the partner library and the
bibliographic record, and create the local request in the mapped status.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dirFlag, _ := cmd.Flags().GetString("direction")
		dir, err := types.ParseDirection(dirFlag)
		if err != nil {
			return err
		}
		patron, _ := cmd.Flags().GetInt64("patron")
		branch, _ := cmd.Flags().GetString("branch")
		cost, _ := cmd.Flags().GetString("cost")

		p, err := buildCreateParams(cmd, args[0], dir)
		if err != nil {
			return err
		}
		p.PatronID = patron
		p.Branch = branch
		p.Cost = cost
		return printOutcome(svc.Create(rootCtx, *p))
	},
}

// buildCreateParams gathers everything create needs from the broker so that
// create itself makes no outbound calls.
func buildCreateParams(cmd *cobra.Command, orderID string, dir types.Direction) (*lifecycle.CreateParams, error) {
	rec, err := client.FetchRequest(rootCtx, orderID)
	if err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", orderID, err)
	}

	p := &lifecycle.CreateParams{
		Direction:  dir,
		Request:    rec,
		Attributes: map[string]string{},
	}

	if sigil := rec.PartnerSigil(dir); sigil != "" {
		partner, err := client.LookupLibrary(rootCtx, store, sigil)
		if err != nil {
			logger.Warn("partner lookup failed", "sigil", sigil, "error", err)
		} else {
			p.PartnerID = partner.ID
			p.Attributes[types.AttrLibrary] = partner.Name
		}
	}

	bibID := rec.BibID
	if bibID == "" {
		bibID = broker.PlaceholderPrefix + orderID
	}
	src, err := client.FetchBibliographicSource(rootCtx, bibID, broker.SourceRecordFromRequest(rec))
	switch {
	case err != nil:
		logger.Warn("catalog lookup failed", "bib_id", bibID, "error", err)
	case src == nil:
		p.Attributes[attrBibSource] = "request"
	default:
		mergeSource(p.Attributes, rec, src)
	}

	if n, err := strconv.ParseInt(rec.BibID, 10, 64); err == nil {
		p.BiblioID = n
	}
	if biblio, _ := cmd.Flags().GetInt64("biblio"); biblio != 0 {
		p.BiblioID = biblio
	}
	return p, nil
}

// mergeSource fills descriptive attributes the broker record left empty.
func mergeSource(attrs map[string]string, rec *broker.ILLRequest, src *broker.SourceRecord) {
	fill := func(typ, have, fromSource string) {
		if have == "" && fromSource != "" {
			attrs[typ] = fromSource
		}
	}
	fill(types.AttrTitle, rec.Title, src.Title)
	fill(types.AttrAuthor, rec.Author, src.Author)
	fill(types.AttrISBNISSN, rec.ISBNISSN, src.ISBN)
	fill(types.AttrImprint, rec.Imprint, src.Imprint)
	fill(types.AttrYear, rec.Year, src.Year)
	fill(types.AttrMediaType, rec.MediaType, src.MediaType)
	if src.Synthetic {
		attrs[attrBibSource] = "request"
	} else {
		attrs[attrBibSource] = "catalog"
	}
}

func init() {
	importCmd.Flags().StringP("direction", "d", "in", "Direction: in (we lend) or out (we borrow)")
	importCmd.Flags().Int64("patron", 0, "Local patron id")
	importCmd.Flags().String("branch", "", "Pickup branch")
	importCmd.Flags().String("cost", "", "Cost of the loan, e.g. \"50 SEK\"")
	importCmd.Flags().Int64("biblio", 0, "Local bibliographic record id (defaults to the broker bib id)")
	rootCmd.AddCommand(importCmd)
}
