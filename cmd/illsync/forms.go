package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/steveyegge/illsync/internal/broker"
	"github.com/steveyegge/illsync/internal/timeparsing"
	"github.com/steveyegge/illsync/internal/types"
)

// errFormAborted is returned when the user backs out of a form.
var errFormAborted = errors.New("cancelled")

func runForm(form *huh.Form) error {
	if err := form.WithTheme(huh.ThemeDracula()).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errFormAborted
		}
		return fmt.Errorf("form error: %w", err)
	}
	return nil
}

func validateDueDate(s string) error {
	_, err := timeparsing.ParseDueDate(s, time.Now())
	return err
}

// receiveForm collects the barcode, due dates and notify choice for the
// commit phase of receive. fields holds flag values and is updated in place.
func receiveForm(fields map[string]string) error {
	barcode := fields["barcode"]
	guar := fields[types.AttrDueDateGuar]
	maxDate := fields[types.AttrDueDateMax]
	notify := fields["notify"] == "1"
	commit := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Barcode").
				Description("Barcode on the received copy").
				Value(&barcode).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("barcode is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Guaranteed due date").
				Description("2024-05-01, +3w or \"in 3 weeks\" (optional)").
				Value(&guar).
				Validate(validateDueDate),
			huh.NewInput().
				Title("Latest due date").
				Description("Same formats (optional)").
				Value(&maxDate).
				Validate(validateDueDate),
			huh.NewConfirm().
				Title("Notify the patron?").
				Value(&notify),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Register the arrival?").
				Affirmative("Receive").
				Negative("Cancel").
				Value(&commit),
		),
	)
	if err := runForm(form); err != nil {
		return err
	}
	if !commit {
		return errFormAborted
	}
	fields["barcode"] = barcode
	fields[types.AttrDueDateGuar] = guar
	fields[types.AttrDueDateMax] = maxDate
	fields["notify"] = boolField(notify)
	return nil
}

// respondForm collects the lender's answer for the commit phase of respond.
func respondForm(fields map[string]string) error {
	responseID := fields[broker.FieldResponseID]
	added := fields[broker.FieldAddedResponse]
	mayReserve := fields[broker.FieldMayReserve] == "1"

	options := make([]huh.Option[string], 0, len(broker.ResponseOptions))
	for _, o := range broker.ResponseOptions {
		options = append(options, huh.NewOption(o.Label, o.ID))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Response").
				Options(options...).
				Value(&responseID),
			huh.NewText().
				Title("Message to the borrowing library").
				CharLimit(1000).
				Value(&added),
			huh.NewConfirm().
				Title("May the borrower reserve the item?").
				Value(&mayReserve),
		),
	)
	if err := runForm(form); err != nil {
		return err
	}
	fields[broker.FieldResponseID] = responseID
	fields[broker.FieldAddedResponse] = added
	fields[broker.FieldMayReserve] = boolField(mayReserve)
	return nil
}

// confirmForm asks a yes/no question.
func confirmForm(title, affirmative string) error {
	ok := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative(affirmative).
				Negative("Cancel").
				Value(&ok),
		),
	)
	if err := runForm(form); err != nil {
		return err
	}
	if !ok {
		return errFormAborted
	}
	return nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
