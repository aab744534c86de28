package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	loamAdapter "github.com/aretw0/tendril/pkg/adapters/loam"
	"github.com/aretw0/tendril/pkg/chain"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage agents",
}

var agentLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		agents, err := eng.Store.Agents.List(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), agents)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUID\tNAME\tMODEL\tCHAIN")
		for _, a := range agents {
			hasChain := "-"
			if a.Chain != "" {
				hasChain = "yes"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", a.ID, a.UID, a.Name, a.Model, hasChain)
		}
		return w.Flush()
	},
}

var agentAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create or update an agent",
	Long:  `Creates an agent, or updates the agent with the same --uid.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		a := domain.AgentForCreate{}
		a.UID, _ = f.GetString("uid")
		a.Name, _ = f.GetString("name")
		a.Model, _ = f.GetString("model")
		a.Inst, _ = f.GetString("inst")
		a.PromptTmpl, _ = f.GetString("prompt")
		kind, _ := f.GetString("kind")
		a.Kind = domain.AgentKind(kind)
		format, _ := f.GetString("out-format")
		a.OutFormat = domain.OutFormat(format)

		if a.Name == "" {
			return fmt.Errorf("--name is required")
		}
		if path, _ := f.GetString("chain-file"); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read chain: %w", err)
			}
			if _, err := chain.Parse(data); err != nil {
				return err
			}
			a.Chain = string(data)
		}

		eng, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		id, created, err := eng.Store.Agents.Upsert(cmd.Context(), a)
		if err != nil {
			return err
		}
		verb := "updated"
		if created {
			verb = "created"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Agent %d %s\n", id, verb)
		return nil
	},
}

var agentImportCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Import markdown agents from a directory",
	Long:  `Upserts, by uid, every agent defined in dir (defaults to agents_dir).`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cfg, logger, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		dir := cfg.AgentsDir
		if len(args) > 0 {
			dir = args[0]
		}
		if dir == "" {
			return fmt.Errorf("no directory given and agents_dir is not set")
		}

		lib, err := loamAdapter.Open(dir, loamAdapter.WithLogger(logger))
		if err != nil {
			return err
		}
		res, err := lib.Import(cmd.Context(), eng.Store.Agents)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported agents: %d created, %d updated\n", res.Created, res.Updated)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.AddCommand(agentLsCmd, agentAddCmd, agentImportCmd)

	agentLsCmd.Flags().Bool("json", false, "Print JSON")

	agentAddCmd.Flags().String("uid", "", "Stable identifier (generated when empty)")
	agentAddCmd.Flags().String("name", "", "Display name")
	agentAddCmd.Flags().String("model", "", "Model, e.g. fc-mock-echo-inst or claude-sonnet-4-5")
	agentAddCmd.Flags().String("inst", "", "Instructions")
	agentAddCmd.Flags().String("prompt", "", "Prompt template, e.g. 'Summarize: {{.input}}'")
	agentAddCmd.Flags().String("chain-file", "", "Path to a chain definition (JSON, comments allowed)")
	agentAddCmd.Flags().String("kind", string(domain.AgentKindAI), "Agent kind: ai or logic")
	agentAddCmd.Flags().String("out-format", string(domain.OutFormatText), "Output format: text or json")
}
