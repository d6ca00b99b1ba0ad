package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"gerritevents/pkg/gerrit"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode a Gerrit event and print its ref update",
		Long: `Decode reads a single Gerrit event payload from a file, or from stdin
when no file is given, and prints the ref update it carries.

Only ref-updated events are supported.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			evt, err := gerrit.ParseEvent(data)
			if err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			refUpdated, ok := evt.(*gerrit.RefUpdated)
			if !ok {
				return fmt.Errorf("decode event: %w: %s", gerrit.ErrUnsupportedEventType, evt.Type())
			}
			printRefUpdated(cmd.OutOrStdout(), refUpdated, newPalette(noColor))
			return nil
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Turn off colored output")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return data, nil
}

type palette struct {
	label *color.Color
	ref   *color.Color
	old   *color.Color
	new   *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		label: color.New(color.Bold),
		ref:   color.New(color.FgCyan),
		old:   color.New(color.FgRed),
		new:   color.New(color.FgGreen),
	}
	if noColor {
		for _, c := range []*color.Color{p.label, p.ref, p.old, p.new} {
			c.DisableColor()
		}
	}
	return p
}

func printRefUpdated(out io.Writer, evt *gerrit.RefUpdated, p palette) {
	update := evt.RefUpdate
	p.label.Fprintln(out, update.String())

	ref, ok := update.Ref()
	if !ok {
		ref = "(none)"
	}
	fmt.Fprintf(out, "ref:       %s\n", p.ref.Sprint(ref))
	oldRev, newRev := revisions(update)
	fmt.Fprintf(out, "revision:  %s -> %s\n", p.old.Sprint(oldRev), p.new.Sprint(newRev))
	if evt.Submitter != nil {
		fmt.Fprintf(out, "submitter: %s\n", evt.Submitter)
	}
	if evt.EventCreatedOn != nil {
		fmt.Fprintf(out, "created:   %s\n", evt.EventCreatedOn.Format(time.RFC3339))
	}
}

func revisions(update *gerrit.RefUpdate) (string, string) {
	if update == nil {
		return gerrit.FieldText(nil), gerrit.FieldText(nil)
	}
	return gerrit.FieldText(update.OldRev), gerrit.FieldText(update.NewRev)
}
