package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shelfradar",
		Short:         "Book discovery with user content filters and popularity ranking",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(recomputeCmd())
	root.AddCommand(discoverCmd())
	root.AddCommand(reimportanceCmd())

	return root
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with popularity scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func recomputeCmd() *cobra.Command {
	var window int

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute popularity scores once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecompute(window)
		},
	}

	cmd.Flags().IntVar(&window, "window", 0, "trailing window in days (default: from config)")
	return cmd
}

func discoverCmd() *cobra.Command {
	var (
		view       string
		userID     int64
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Show the books of a view for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(view, userID, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&view, "view", "", "view slug")
	cmd.Flags().Int64Var(&userID, "user", 0, "user id (0 for anonymous)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max books to show (default: from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("view")
	return cmd
}

func reimportanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reimportance",
		Short: "Recompute importance for every taxonomy assignment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReimportance()
		},
	}
}
