package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"nexus/internal/daemonrun"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Queue syncs for every subscription that is due",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				queued, err := rt.Sweeper.Sweep(c)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d subscription syncs\n", queued)
				return nil
			})
		},
	}
}
