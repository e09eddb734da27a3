package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nexus/internal/daemonrun"
	"nexus/internal/ingest"
	"nexus/internal/services"
	"nexus/internal/store"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Submit media for processing",
	}

	var title, kind string
	var asJSON bool
	urlCmd := &cobra.Command{
		Use:   "url <url>",
		Short: "Queue a YouTube, Instagram, RSS or web URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				sub, err := rt.Ingest.SubmitURL(c, ingest.URLRequest{URL: args[0], Title: title, Kind: store.MediaKind(kind)})
				if err != nil {
					return err
				}
				return printSubmission(cmd, sub, asJSON)
			})
		},
	}
	urlCmd.Flags().StringVar(&title, "title", "", "Title to use until extraction finds one")
	urlCmd.Flags().StringVar(&kind, "type", "", "Override URL classification (youtube, instagram, web)")
	outputFlags(urlCmd, &asJSON)

	var fileTitle string
	var fileJSON bool
	fileCmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Queue a local audio or video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer file.Close()
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				sub, err := rt.Ingest.SubmitUpload(c, file, filepath.Base(args[0]), fileTitle)
				if err != nil {
					return err
				}
				return printSubmission(cmd, sub, fileJSON)
			})
		},
	}
	fileCmd.Flags().StringVar(&fileTitle, "title", "", "Title (defaults to the file name)")
	outputFlags(fileCmd, &fileJSON)

	ingestCmd.AddCommand(urlCmd, fileCmd)
	return ingestCmd
}

func printSubmission(cmd *cobra.Command, sub ingest.Submission, asJSON bool) error {
	if asJSON {
		return writeJSON(cmd, sub)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Queued media %s\n", sub.MediaID)
	fmt.Fprintf(out, "  job:  %s\n", sub.JobID)
	fmt.Fprintf(out, "  task: %s\n", sub.TaskID)
	return nil
}

func newMediaCommand(ctx *commandContext) *cobra.Command {
	mediaCmd := &cobra.Command{
		Use:     "media",
		Aliases: []string{"m"},
		Short:   "Inspect and manage archived media",
	}

	var status, kind, subscription string
	var limit, skip int
	var listJSON bool
	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List media items, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				items, err := rt.Store.ListMedia(c, store.MediaFilter{
					Status:         store.MediaStatus(status),
					Kind:           store.MediaKind(kind),
					SubscriptionID: subscription,
					Limit:          limit,
					Offset:         skip,
				})
				if err != nil {
					return err
				}
				if listJSON {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No media found")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderMediaTable(items))
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "Filter by status")
	listCmd.Flags().StringVar(&kind, "type", "", "Filter by type")
	listCmd.Flags().StringVar(&subscription, "subscription", "", "Filter by subscription ID")
	listCmd.Flags().IntVar(&limit, "limit", 50, "Maximum items to show")
	listCmd.Flags().IntVar(&skip, "skip", 0, "Items to skip")
	outputFlags(listCmd, &listJSON)

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a media item with its summary and latest job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				item, err := rt.Store.GetMedia(c, args[0])
				if err != nil {
					return err
				}
				if item == nil {
					return services.Wrap(services.ErrNotFound, "cli", "media show", "media "+args[0], nil)
				}
				job, err := rt.Store.LatestJobForMedia(c, item.ID)
				if err != nil {
					return err
				}
				renderMediaDetail(cmd, item, job)
				return nil
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a media item, its jobs and stored audio",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				if err := rt.Ingest.DeleteMedia(c, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted media %s\n", args[0])
				return nil
			})
		},
	}

	retryCmd := &cobra.Command{
		Use:   "retry <id>",
		Short: "Queue a fresh job for media whose last job failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				sub, err := rt.Ingest.RetryJob(c, args[0])
				if err != nil {
					return err
				}
				return printSubmission(cmd, sub, false)
			})
		},
	}

	mediaCmd.AddCommand(listCmd, showCmd, deleteCmd, retryCmd)
	return mediaCmd
}

func renderMediaTable(items []*store.MediaItem) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			item.Title,
			string(item.Kind),
			string(item.Status),
			strings.Join(item.Tags, ", "),
			item.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Type", "Status", "Tags", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

func renderMediaDetail(cmd *cobra.Command, item *store.MediaItem, job *store.ProcessingJob) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", item.Title)
	fmt.Fprintf(out, "  id:        %s\n", item.ID)
	fmt.Fprintf(out, "  type:      %s (%s)\n", item.Kind, item.SourceCategory)
	fmt.Fprintf(out, "  status:    %s\n", item.Status)
	if item.SourceURL != "" {
		fmt.Fprintf(out, "  source:    %s\n", item.SourceURL)
	}
	if item.DurationSeconds > 0 {
		fmt.Fprintf(out, "  duration:  %s\n", time.Duration(item.DurationSeconds)*time.Second)
	}
	if len(item.Tags) > 0 {
		fmt.Fprintf(out, "  tags:      %s\n", strings.Join(item.Tags, ", "))
	}
	fmt.Fprintf(out, "  embedded:  %s\n", yesNo(item.HasEmbedding()))
	if job != nil {
		line := fmt.Sprintf("%s %s %d%%", job.ID, job.Status, job.ProgressPercent)
		if job.ErrorMessage != "" {
			line += " - " + job.ErrorMessage
		}
		fmt.Fprintf(out, "  job:       %s\n", line)
	}
	if item.AISummary != "" {
		fmt.Fprintf(out, "\n%s\n", item.AISummary)
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and run processing jobs",
	}

	var status string
	var limit int
	var listJSON bool
	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recent processing jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				jobs, err := rt.Store.ListJobs(c, store.JobStatus(status), limit)
				if err != nil {
					return err
				}
				if listJSON {
					return writeJSON(cmd, jobs)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						job.ID, job.MediaID, string(job.Status), fmt.Sprintf("%d%%", job.ProgressPercent), job.ErrorMessage,
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Job", "Media", "Status", "Progress", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "Filter by status")
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum jobs to show")
	outputFlags(listCmd, &listJSON)

	showCmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job's status view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				view, err := rt.Store.JobStatus(c, args[0])
				if err != nil {
					return err
				}
				if view == nil {
					return services.Wrap(services.ErrNotFound, "cli", "jobs show", "job "+args[0], nil)
				}
				return writeJSON(cmd, view)
			})
		},
	}

	runCmd := &cobra.Command{
		Use:   "run <job-id>",
		Short: "Run a pending job's pipeline in this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				final, err := rt.Pipeline.RunPipeline(c, args[0], "")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s finished: %s\n", args[0], final)
				return nil
			})
		},
	}

	jobsCmd.AddCommand(listCmd, showCmd, runCmd)
	return jobsCmd
}
