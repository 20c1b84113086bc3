package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Build stamps, overridden with
// -ldflags "-X main.Version=... -X main.Commit=... -X main.BuildTime=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Global flags
var (
	configFile   string
	logLevel     string
	logFormat    string
	outputFormat string
	noColor      bool
)

// errVaultDown makes check exit with status 1 without printing an error
// line of its own.
var errVaultDown = errors.New("vault is down")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vaultprops",
	Short: "Serve vault secrets as application properties",
	Long: `vaultprops loads secrets from a vault into an in-memory snapshot and
resolves relaxed property names (db.password, DB_PASSWORD) to the vault's
restricted alphabet.

It provides commands for:
  - Serving: HTTP API with health, readiness, refresh and metrics
  - Inspecting: list property names, read one property, probe the vault
  - Naming: show how a property name is translated

Environment variables:
  VAULTPROPS_CONFIG   Config file path
  VAULTPROPS_OUTPUT   Output format: json, table (default: table)
  VAULTPROPS_*        Settings overriding the config file (see README)`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		InitColor(!noColor)

		if configFile == "" {
			configFile = os.Getenv("VAULTPROPS_CONFIG")
		}

		// Resolve output format (flag > env > default)
		if outputFormat == "" {
			outputFormat = os.Getenv("VAULTPROPS_OUTPUT")
		}
		if outputFormat == "" {
			outputFormat = "table"
		}
		if outputFormat != "table" && outputFormat != "json" {
			return fmt.Errorf("invalid output format %q: must be json or table", outputFormat)
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version, commit hash, and build time of vaultprops.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			return printJSON(out, map[string]string{
				"version":    Version,
				"commit":     Commit,
				"build_time": BuildTime,
				"go_version": runtime.Version(),
				"platform":   runtime.GOOS + "/" + runtime.GOARCH,
			})
		}

		fmt.Fprintf(out, "%s\n", Bold("vaultprops"))
		fmt.Fprintf(out, "  Version:    %s\n", Version)
		fmt.Fprintf(out, "  Commit:     %s\n", Commit)
		fmt.Fprintf(out, "  Built:      %s\n", BuildTime)
		fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
		fmt.Fprintf(out, "  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errVaultDown) {
		fmt.Fprintf(os.Stderr, "%s %v\n", Red("Error:"), err)
	}
	return err
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if errors.Is(err, errVaultDown) {
		return 1
	}
	return 2
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: $VAULTPROPS_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format override: json, console")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "Output format: json, table (default: table)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(completionCmd)
}
