package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/tendril/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var convCmd = &cobra.Command{
	Use:   "conv",
	Short: "Manage conversations",
}

var convNewCmd = &cobra.Command{
	Use:   "new <agent-uid>",
	Short: "Start a conversation with an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")

		eng, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		c, err := eng.Convs.CreateConv(cmd.Context(), args[0], title)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), c.ID)
		return nil
	},
}

var convSendCmd = &cobra.Command{
	Use:   "send <conv-id> <text...>",
	Short: "Send a message and print the answer",
	Long: `Adds a user message and drives the traversal in-process until the agent
answers. With --async the message is only enqueued for a running worker.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		convID, err := parseID(args[0])
		if err != nil {
			return err
		}
		text := strings.Join(args[1:], " ")
		async, _ := cmd.Flags().GetBool("async")
		raw, _ := cmd.Flags().GetBool("raw")

		eng, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		if async {
			msg, err := eng.Convs.AddMessage(cmd.Context(), convID, text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Message %d queued\n", msg.ID)
			return nil
		}

		answer, err := eng.Ask(cmd.Context(), convID, text)
		if err != nil {
			return err
		}
		return tui.NewPrinter(cmd.OutOrStdout(), raw).PrintAnswer(answer.Content)
	},
}

var convMessagesCmd = &cobra.Command{
	Use:   "messages <conv-id>",
	Short: "Print the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		convID, err := parseID(args[0])
		if err != nil {
			return err
		}
		raw, _ := cmd.Flags().GetBool("raw")

		eng, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		msgs, err := eng.Convs.ListMessages(cmd.Context(), convID)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), msgs)
		}
		p := tui.NewPrinter(cmd.OutOrStdout(), raw)
		for _, m := range msgs {
			if err := p.PrintMessage(m); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convCmd)
	convCmd.AddCommand(convNewCmd, convSendCmd, convMessagesCmd)

	convNewCmd.Flags().String("title", "", "Conversation title")
	convSendCmd.Flags().Bool("async", false, "Only enqueue the message for a worker")
	convSendCmd.Flags().Bool("raw", false, "Do not render markdown")
	convMessagesCmd.Flags().Bool("raw", false, "Do not render markdown")
	convMessagesCmd.Flags().Bool("json", false, "Print JSON")
}
