package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"matchengine/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "config",
		Short:             "Configuration helpers",
		PersistentPreRunE: noConfig,
	}

	var output string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Write the default configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(config.GetDefault())
			if err != nil {
				return fmt.Errorf("marshal defaults: %w", err)
			}
			if output == "" || output == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", output)
			return nil
		},
	}
	generate.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	cmd.AddCommand(generate)
	return cmd
}
