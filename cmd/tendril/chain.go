package main

import (
	"fmt"

	"github.com/aretw0/tendril/internal/presentation/graph"
	"github.com/aretw0/tendril/internal/runtime"
	"github.com/aretw0/tendril/internal/validator"
	"github.com/aretw0/tendril/pkg/chain"
	"github.com/spf13/cobra"
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Inspect agent chains",
}

var chainCheckCmd = &cobra.Command{
	Use:   "check <agent-uid>",
	Short: "Check a chain and every agent reachable from it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		agent, err := eng.Store.Agents.GetByUID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := validator.ValidateChain(cmd.Context(), agent, runtime.NewAgentResolver(eng.Store.Agents)); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Chain is valid!")
		return nil
	},
}

var chainGraphCmd = &cobra.Command{
	Use:   "graph <agent-uid>",
	Short: "Export the chain as a Mermaid diagram",
	Long: `Outputs a Mermaid flowchart (graph TD) of the agent's chain. With --conv the
positions recorded by that conversation's steps are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		agent, err := eng.Store.Agents.GetByUID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		c, err := chain.ForAgent(agent)
		if err != nil {
			return err
		}

		var overlay *graph.GraphOverlay
		if convID, _ := cmd.Flags().GetInt64("conv"); convID != 0 {
			steps, err := eng.Convs.ListSteps(cmd.Context(), convID)
			if err != nil {
				return err
			}
			overlay = graph.OverlayFromSteps(agent.UID, steps)
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(c, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chainCmd)
	chainCmd.AddCommand(chainCheckCmd, chainGraphCmd)
	chainGraphCmd.Flags().Int64("conv", 0, "Highlight the steps of this conversation")
}
