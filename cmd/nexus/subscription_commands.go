package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"nexus/internal/daemonrun"
	"nexus/internal/ingest"
	"nexus/internal/services"
	"nexus/internal/store"
	"nexus/internal/subscriptions"
)

func newSubscriptionsCommand(ctx *commandContext) *cobra.Command {
	subsCmd := &cobra.Command{
		Use:     "subs",
		Aliases: []string{"subscriptions"},
		Short:   "Manage recurring content subscriptions",
	}
	subsCmd.AddCommand(
		newSubsAddCommand(ctx),
		newSubsListCommand(ctx),
		newSubsShowCommand(ctx),
		newSubsUpdateCommand(ctx),
		newSubsDeleteCommand(ctx),
		newSubsSyncCommand(ctx),
		newSubsImportCommand(ctx),
	)
	return subsCmd
}

func newSubsAddCommand(ctx *commandContext) *cobra.Command {
	var req ingest.SubscriptionRequest
	var disabled bool
	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Subscribe to a site, channel or podcast",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.URL = args[0]
			if disabled {
				enabled := false
				req.SyncEnabled = &enabled
			}
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				sub, err := rt.Ingest.CreateSubscription(c, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subscribed %s (%s, every %d days)\n", sub.ID, sub.URL, sub.PeriodDays)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "Display title")
	cmd.Flags().StringVar(&req.Kind, "type", "site", "Subscription type: site, channel or podcast")
	cmd.Flags().StringVar(&req.Description, "description", "", "Free-form description")
	cmd.Flags().StringVar(&req.Prompt, "prompt", "", "Relevance prompt applied to new entries")
	cmd.Flags().IntVar(&req.PeriodDays, "period", ingest.DefaultPeriodDays, "Look-back window in days")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create with scheduled sync turned off")
	return cmd
}

func newSubsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				subs, err := rt.Store.ListSubscriptions(c)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, subs)
				}
				if len(subs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No subscriptions")
					return nil
				}
				rows := make([][]string, 0, len(subs))
				for _, sub := range subs {
					rows = append(rows, []string{
						sub.ID, sub.Title, sub.Kind, fmt.Sprint(sub.PeriodDays), yesNo(sub.SyncEnabled), formatChecked(sub.LastChecked),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Type", "Period", "Sync", "Last checked"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	outputFlags(cmd, &asJSON)
	return cmd
}

func formatChecked(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}

func newSubsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				sub, err := rt.Store.GetSubscription(c, args[0])
				if err != nil {
					return err
				}
				if sub == nil {
					return services.Wrap(services.ErrNotFound, "cli", "subs show", "subscription "+args[0], nil)
				}
				return writeJSON(cmd, sub)
			})
		},
	}
}

func newSubsUpdateCommand(ctx *commandContext) *cobra.Command {
	var title, description, prompt string
	var period int
	var enable, disable bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change subscription fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if enable && disable {
				return fmt.Errorf("--enable and --disable are mutually exclusive")
			}
			var patch store.SubscriptionPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("prompt") {
				patch.Prompt = &prompt
			}
			if flags.Changed("period") {
				patch.PeriodDays = &period
			}
			if enable || disable {
				enabled := enable
				patch.SyncEnabled = &enabled
			}
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				sub, err := rt.Ingest.UpdateSubscription(c, args[0], patch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (every %d days, sync %s)\n", sub.ID, sub.PeriodDays, yesNo(sub.SyncEnabled))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Display title")
	cmd.Flags().StringVar(&description, "description", "", "Free-form description")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Relevance prompt")
	cmd.Flags().IntVar(&period, "period", 0, "Look-back window in days")
	cmd.Flags().BoolVar(&enable, "enable", false, "Turn scheduled sync on")
	cmd.Flags().BoolVar(&disable, "disable", false, "Turn scheduled sync off")
	return cmd
}

func newSubsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a subscription; imported media is kept",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				if err := rt.Ingest.DeleteSubscription(c, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted subscription %s\n", args[0])
				return nil
			})
		},
	}
}

func newSubsSyncCommand(ctx *commandContext) *cobra.Command {
	var inline bool
	cmd := &cobra.Command{
		Use:   "sync <id>",
		Short: "Queue a manual sync, or run it here with --now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				out := cmd.OutOrStdout()
				if !inline {
					taskID, err := rt.Ingest.SyncNow(c, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Queued sync task %s\n", taskID)
					return nil
				}
				result, err := rt.Syncer.Sync(c, args[0], subscriptions.SyncOptions{Manual: true})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Sync %s: %d created, %d rejected, %d duplicates, %d failed\n",
					result.Status, result.CreatedCount, result.Rejected, result.Duplicates, result.Failed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&inline, "now", false, "Run the sync in this process instead of queueing it")
	return cmd
}

func newSubsImportCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create subscriptions from a YAML list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer file.Close()
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				result, err := rt.Ingest.ImportSubscriptions(c, file)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Imported %d, skipped %d existing, %d errors\n", len(result.Created), len(result.Skipped), len(result.Errors))
				for _, msg := range result.Errors {
					fmt.Fprintf(out, "  %s\n", msg)
				}
				return nil
			})
		},
	}
	outputFlags(cmd, &asJSON)
	return cmd
}
