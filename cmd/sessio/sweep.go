package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	var backend backendFlags

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evict expired sessions from a shared backend",
		Long: `Sweep runs one eviction pass against a redis or postgres backend
and reports how many sessions were removed. Intended for cron jobs
against deployments that do not run a background sweep.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if backend.backend == "memory" {
				return fmt.Errorf("sweep needs a shared backend; use --backend=redis or --backend=postgres")
			}

			ctx := cmd.Context()
			m, cleanup, err := backend.open(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := m.RemoveExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d expired session(s)\n", n)
			return nil
		},
	}

	backend.register(cmd)
	return cmd
}
