package main

import (
	"fmt"
	"os"

	"github.com/saltehb/hiway/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hiway",
	Short: "In-memory provenance store for workflow execution logs",
}

func main() {
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
