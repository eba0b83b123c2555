package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"matchengine/internal/model"
	"matchengine/internal/service"
)

func newMatchCommand(a *app) *cobra.Command {
	var save, yes bool

	cmd := &cobra.Command{
		Use:   "match <buyer-id>",
		Short: "Preview a buyer's matches and optionally save them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			oracle, err := a.newOracle(ctx)
			if err != nil {
				return err
			}
			locker, closeLocker, err := a.newLocker(ctx)
			if err != nil {
				return err
			}
			defer closeLocker()

			svc := a.newMatchService(store, oracle, nil, locker)

			preview, err := svc.Run(ctx, service.RunRequest{BuyerID: args[0], Trigger: model.TriggerCLI})
			if err != nil {
				return err
			}
			printMatches(os.Stdout, preview)

			if !save {
				return nil
			}
			if !yes {
				confirm := promptui.Prompt{Label: "Save these results", IsConfirm: true}
				if _, err := confirm.Run(); err != nil {
					if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
						fmt.Println("Not saved.")
						return nil
					}
					return err
				}
			}

			saved, err := svc.Run(ctx, service.RunRequest{BuyerID: args[0], Save: true, Trigger: model.TriggerCLI})
			if err != nil {
				return err
			}
			fmt.Printf("Saved run %s: %d matches, %d notifications\n", saved.RunID, len(saved.Matches), saved.NotificationsCreated)
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", true, "offer to save the results after the preview")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "save without prompting")
	return cmd
}

func printMatches(w io.Writer, resp *model.MatchResponse) {
	fmt.Fprintf(w, "Buyer: %s (run %s, %dms)\n", resp.BuyerName, resp.RunID, resp.Took)
	fmt.Fprintf(w, "Passed hard filter: %d, excluded: %d\n", resp.TotalFiltered, resp.FailedCount)
	if resp.Message != "" {
		fmt.Fprintln(w, resp.Message)
	}
	if len(resp.Matches) == 0 {
		fmt.Fprintln(w, "No ranked matches.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tPROPERTY\tADDRESS\tREASON")
	for _, m := range resp.Matches {
		address := ""
		if m.Property != nil {
			address = m.Property.Summary()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", m.MatchScore, m.PropertyID, address, m.MatchReason)
	}
	_ = tw.Flush()
}
