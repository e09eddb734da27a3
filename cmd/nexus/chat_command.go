package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nexus/internal/chat"
	"nexus/internal/daemonrun"
)

func newChatCommand(ctx *commandContext) *cobra.Command {
	var contextItems int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask a question answered from the archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				reply, err := rt.Chat.Ask(c, chat.Request{
					Message:         strings.Join(args, " "),
					MaxContextItems: contextItems,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, reply)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, reply.Response)
				if len(reply.ContextMediaIDs) > 0 {
					fmt.Fprintf(out, "\nSources: %s\n", strings.Join(reply.ContextMediaIDs, ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&contextItems, "context", chat.DefaultContextItems, "Archive items given to the model")
	outputFlags(cmd, &asJSON)
	cmd.AddCommand(newChatHistoryCommand(ctx), newChatClearCommand(ctx))
	return cmd
}

func newChatHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent chat messages, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				messages, err := rt.Chat.History(c, limit, 0)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, messages)
				}
				if len(messages) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No chat history")
					return nil
				}
				rows := make([][]string, 0, len(messages))
				for _, m := range messages {
					rows = append(rows, []string{m.CreatedAt.Local().Format("2006-01-02 15:04"), string(m.Role), m.Text})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Time", "Role", "Message"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum messages")
	outputFlags(cmd, &asJSON)
	return cmd
}

func newChatClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the chat history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				n, err := rt.Chat.Clear(c)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d chat messages\n", n)
				return nil
			})
		},
	}
}
