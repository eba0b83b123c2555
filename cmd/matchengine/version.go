package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print the version",
		PersistentPreRunE: noConfig,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Printf("matchengine version: %s\n", Version)
			fmt.Printf("build time: %s\n", BuildTime)
			fmt.Printf("git commit: %s\n", GitCommit)
		},
	}
}
