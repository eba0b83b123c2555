package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"matchengine/internal/service"
)

func newEmbedCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Compute missing property and buyer taste embeddings",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := service.NewOpenAIClient(&a.cfg.OpenAI, a.log)
			if !client.IsEnabled() {
				return errors.New("openai.api_key is required to compute embeddings")
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := service.NewEmbeddingRefresher(client, store, a.log).Refresh(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Printf("Embedded %d properties and %d buyers\n", stats.Properties, stats.Buyers)
			for _, msg := range stats.Errors {
				fmt.Println("  error:", msg)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum rows of each kind to embed")
	return cmd
}
