package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use: "pulse",
	Short: "Pulse CLI tool can perform common tasks related to operating " +
		"the Pulse instrumentation agent.",
	Long: `Pulse CLI tool can perform common tasks related to operating ` +
		`the Pulse instrumentation agent. Currently, it supports diagnosing ` +
		`the host environment and reporting on recorded trace databases.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
