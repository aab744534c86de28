package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/spf13/cobra"
)

var stepsCmd = &cobra.Command{
	Use:   "steps <conv-id>",
	Short: "Inspect the execution steps of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		convID, err := parseID(args[0])
		if err != nil {
			return err
		}

		eng, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		steps, err := eng.Convs.ListSteps(cmd.Context(), convID)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), steps)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMSG\tSTATUS\tAGENT\tSTACK\tOUTPUT")
		for _, s := range steps {
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
				s.ID, s.OrigMsgID, stepStatus(s), deref(s.RunAgentName), deref(s.CallStack), preview(s))
		}
		return w.Flush()
	},
}

func stepStatus(s *domain.Step) string {
	switch {
	case s.Failed():
		return "failed"
	case s.Closer && s.IsRun():
		return "closed"
	case s.IsRun():
		return "run"
	case s.IsResolved():
		return "resolved"
	case s.ResolveTStart != nil:
		return "resolving"
	default:
		return "new"
	}
}

func preview(s *domain.Step) string {
	text := deref(s.CallOut)
	if s.CallErr != nil {
		text = *s.CallErr
	}
	text = strings.ReplaceAll(text, "\n", " ")
	if len(text) > 40 {
		text = text[:37] + "..."
	}
	return text
}

func init() {
	rootCmd.AddCommand(stepsCmd)
	stepsCmd.Flags().Bool("json", false, "Print JSON")
}
