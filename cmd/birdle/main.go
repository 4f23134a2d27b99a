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
		Use:           "birdle",
		Short:         "Scrape posts, build and pick the daily Birdle puzzle",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(scrapeCmd())
	root.AddCommand(solveCmd())
	root.AddCommand(pickCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(handlesCmd())
	root.AddCommand(sayingsCmd())

	return root
}

func scrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Run one scrape cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape()
		},
	}
}

func solveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "solve",
		Short: "Build candidate puzzles for the current day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve()
		},
	}
}

func pickCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "pick",
		Short: "Pick the day's puzzle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPick(id)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "pick a specific candidate instead of the least used one")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show scrape progress and today's candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
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
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func handlesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handles",
		Short: "Manage tracked handles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add HANDLE...",
		Short: "Track handles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandlesAdd(args)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove HANDLE",
		Short: "Stop tracking a handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandlesRemove(args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tracked handles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandlesList()
		},
	})

	return cmd
}

func sayingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sayings",
		Short: "Manage candidate sayings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add SAYING...",
		Short: "Add four word sayings (quote each one)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSayingsAdd(args)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Add one saying per line from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSayingsImport(args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sayings, least used first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSayingsList()
		},
	})

	return cmd
}
