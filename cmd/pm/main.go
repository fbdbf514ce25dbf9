package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/pm/internal/cli"
	"github.com/example/pm/internal/models"
	"github.com/example/pm/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "pm",
		Short:   "pm - project management from the terminal",
		Version: version.String(),
		Long: `pm is a CLI client for the project-management backend.
It lists, filters, edits and watches projects, tasks, users, comments and activity logs.`,
		SilenceUsage: true,
	}
	cli.AddGlobalFlags(rootCmd)

	// Session
	rootCmd.AddCommand(cli.LoginCmd())
	rootCmd.AddCommand(cli.LogoutCmd())
	rootCmd.AddCommand(cli.WhoamiCmd())

	// Entity commands
	for _, schema := range models.Schemas() {
		rootCmd.AddCommand(cli.EntityCmd(schema))
	}

	err := rootCmd.Execute()
	if finishErr := cli.Finish(); finishErr != nil {
		fmt.Fprintln(os.Stderr, finishErr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
