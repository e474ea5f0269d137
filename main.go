package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const name = "eventstore"

var (
	// set via ldflags
	version = "1.0"
	env     = "local"
)

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serveCmd := newServeCmd()

	rootCmd := &cobra.Command{
		Use:           name,
		Short:         "HTTP event store backed by a single JSON file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCmd.RunE(cmd, args)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file path (optional, env vars and defaults otherwise)")
	flags.String("host", "", "REST listen host (default localhost)")
	flags.String("port", "", "REST listen port (default 8080)")
	flags.String("store", "", "path of the JSON events file (default events.json)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, console)")

	bindFlag(rootCmd, "config", "config")
	bindFlag(rootCmd, "server.host", "host")
	bindFlag(rootCmd, "server.port", "port")
	bindFlag(rootCmd, "store.path", "store")
	bindFlag(rootCmd, "log.level", "log-level")
	bindFlag(rootCmd, "log.format", "log-format")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newSnapshotCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// bindFlag lets a flag override key only when it was set on the command line.
func bindFlag(cmd *cobra.Command, key string, flag string) {
	cobra.CheckErr(viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (%s)\n", name, version, env)
		},
	}
}
