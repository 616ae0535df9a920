package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/steveyegge/illsync/internal/broker"
	"github.com/steveyegge/illsync/internal/lifecycle"
	"github.com/steveyegge/illsync/internal/statusgraph"
	"github.com/steveyegge/illsync/internal/types"
	"github.com/steveyegge/illsync/internal/ui"
)

// actionSpec describes one lifecycle action exposed as a command.
type actionSpec struct {
	use     string
	method  string
	short   string
	long    string
	twoStep bool // form then commit

	// form runs between the two phases on an interactive terminal and may
	// edit fields. For single-step actions it is a confirmation prompt.
	form func(fields map[string]string) error

	flags func(cmd *cobra.Command)
}

var actionSpecs = []actionSpec{
	{
		use:     "confirm",
		method:  statusgraph.ActionConfirm,
		short:   "Review a request before acting on it",
		twoStep: true,
	},
	{
		use:     "receive",
		method:  statusgraph.ActionReceive,
		short:   "Register the arrival of the item on an incoming request",
		long:    "Without --commit, shows the patron notices that will be sent. With --commit, tags the item and moves the request to Arrived.",
		twoStep: true,
		form:    receiveForm,
		flags: func(cmd *cobra.Command) {
			cmd.Flags().String("barcode", "", "Barcode of the received item")
			cmd.Flags().String("due-date-guar", "", "Guaranteed due date (2024-05-01, +3w, \"in 3 weeks\")")
			cmd.Flags().String("due-date-max", "", "Latest due date")
			cmd.Flags().Bool("notify", false, "Send the pickup notice to the patron")
		},
	},
	{
		use:     "respond",
		method:  statusgraph.ActionRespond,
		short:   "Answer a lending request",
		twoStep: true,
		form:    respondForm,
		flags: func(cmd *cobra.Command) {
			cmd.Flags().String("response", "", "Response id (1 Levererad, 2 Negativt svar, 3 Reserverad, 4 Kan reserveras, 5 Väntar)")
			cmd.Flags().String("message", "", "Message to the borrowing library")
			cmd.Flags().Bool("may-reserve", false, "Allow the borrower to reserve the item")
		},
	},
	{
		use:    "read",
		method: statusgraph.ActionSetStatusRead,
		short:  "Mark a new request as read at the broker",
	},
	{
		use:    "close",
		method: statusgraph.ActionClose,
		short:  "Close a returned loan and withdraw the item",
		form: func(map[string]string) error {
			return confirmForm("Close this loan? The item is withdrawn and holds are removed.", "Close")
		},
	},
	{
		use:    "renew",
		method: statusgraph.ActionRenew,
		short:  "Check whether a request can be renewed",
	},
	{
		use:    "cancel",
		method: statusgraph.ActionCancel,
		short:  "Revert a request locally",
		form: func(map[string]string) error {
			return confirmForm("Cancel this request? The order id and cost are cleared.", "Cancel request")
		},
	},
	{
		use:     "status",
		method:  statusgraph.ActionStatus,
		short:   "Show a request's status and the actions available from it",
		twoStep: true,
	},
	{
		use:    "refresh",
		method: statusgraph.ActionRefresh,
		short:  "Pull the current broker status for a request",
	},
}

func init() {
	for _, spec := range actionSpecs {
		rootCmd.AddCommand(newActionCommand(spec))
	}
}

func newActionCommand(spec actionSpec) *cobra.Command {
	cmd := &cobra.Command{
		Use:   spec.use + " REQUEST_ID",
		Short: spec.short,
		Long:  spec.long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			return runAction(cmd, spec, id)
		},
	}
	if spec.twoStep {
		cmd.Flags().Bool("commit", false, "Skip the form phase and apply the action")
	}
	if spec.form != nil && !spec.twoStep {
		cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	}
	if spec.flags != nil {
		spec.flags(cmd)
	}
	return cmd
}

func parseRequestID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid request id %q", s)
	}
	return id, nil
}

// actionFields maps command flags onto the field names ParamsFromStage reads.
func actionFields(cmd *cobra.Command) map[string]string {
	fields := map[string]string{}
	str := func(flag, key string) {
		if f := cmd.Flags().Lookup(flag); f != nil {
			fields[key] = f.Value.String()
		}
	}
	flag := func(flag, key string) {
		if f := cmd.Flags().Lookup(flag); f != nil {
			v, _ := cmd.Flags().GetBool(flag)
			fields[key] = boolField(v)
		}
	}
	str("barcode", "barcode")
	str("due-date-guar", types.AttrDueDateGuar)
	str("due-date-max", types.AttrDueDateMax)
	flag("notify", "notify")
	str("response", broker.FieldResponseID)
	str("message", broker.FieldAddedResponse)
	flag("may-reserve", broker.FieldMayReserve)
	return fields
}

const stageForm = ""

func invoke(spec actionSpec, id int64, stage string, fields map[string]string) (types.Outcome, error) {
	params, err := lifecycle.ParamsFromStage(spec.method, stage, fields)
	if err != nil {
		return types.Outcome{}, err
	}
	return svc.Invoke(rootCtx, spec.method, id, params), nil
}

func runAction(cmd *cobra.Command, spec actionSpec, id int64) error {
	fields := actionFields(cmd)
	interactive := ui.IsInteractive() && !jsonOutput

	if !spec.twoStep {
		if yes, _ := cmd.Flags().GetBool("yes"); spec.form != nil && interactive && !yes {
			if err := spec.form(fields); err != nil {
				return formError(err)
			}
		}
		out, err := invoke(spec, id, spec.method, fields)
		if err != nil {
			return err
		}
		return printOutcome(out)
	}

	if commit, _ := cmd.Flags().GetBool("commit"); commit {
		out, err := invoke(spec, id, lifecycle.StageCommit, fields)
		if err != nil {
			return err
		}
		return printOutcome(out)
	}

	// An empty stage asks for the form; the action's own name would commit.
	out, err := invoke(spec, id, stageForm, fields)
	if err != nil {
		return err
	}
	if err := printOutcome(out); err != nil || !interactive || spec.form == nil {
		return err
	}

	if err := spec.form(fields); err != nil {
		return formError(err)
	}
	out, err = invoke(spec, id, lifecycle.StageCommit, fields)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout)
	return printOutcome(out)
}

func formError(err error) error {
	if errors.Is(err, errFormAborted) {
		fmt.Fprintln(stdout, ui.RenderMuted("Nothing changed."))
		return nil
	}
	return err
}
