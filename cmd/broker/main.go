package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	// Register the store dialers with the global adapter registry
	_ "github.com/redbco/redb-broker/internal/database/mysql"
	_ "github.com/redbco/redb-broker/internal/database/postgres"
	_ "github.com/redbco/redb-broker/internal/database/redis"
)

var (
	configFile string
	debugMode  bool
	logLevel   string

	// Build information, set with -ldflags
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func printVersionInfo() {
	fmt.Printf("redb-broker %s\n", Version)
	fmt.Printf("Built: %s, from commit: %s\n", BuildTime, GitCommit)
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

var rootCmd = &cobra.Command{
	Use:   "redb-broker",
	Short: "Named connection broker for Redis, MySQL and PostgreSQL",
	Long: "redb-broker maps logical connection names onto shared store sessions and " +
		"dispatches operations onto them.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Lookup("version").Changed {
			printVersionInfo()
			return nil
		}
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default $REDB_BROKER_CONFIG or ./broker.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Trace every call and query")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	rootCmd.Flags().Bool("version", false, "Show version information and exit")

	setupCommands()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
