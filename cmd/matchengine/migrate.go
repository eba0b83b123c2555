package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			applied, err := store.Migrator().Migrate(cmd.Context())
			if err != nil {
				return err
			}
			a.log.Info("migrations applied", zap.Int("count", applied))
			fmt.Printf("Applied %d migration(s)\n", applied)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			statuses, err := store.Migrator().Status(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tDESCRIPTION\tAPPLIED")
			for _, st := range statuses {
				applied := "pending"
				if st.Applied && st.AppliedAt != nil {
					applied = st.AppliedAt.Format("2006-01-02 15:04:05")
				} else if st.Applied {
					applied = "yes"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", st.Version, st.Description, applied)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrator().Rollback(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Rolled back the last migration")
			return nil
		},
	})
	return cmd
}
