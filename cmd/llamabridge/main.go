package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/llamabridge/llamabridge/internal/version"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "llamabridge",
		Short:        "Chat bridge between messaging platforms and completion endpoints",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
