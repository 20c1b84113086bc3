package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/conductor/vaultprops/internal/propertysource"
	"github.com/conductor/vaultprops/pkg/health"
)

// checkCmd probes the vault once.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe the vault",
	Long: `Load the vault and run the health probe. Exits with status 1 when the
vault is down, so the command can back a container health check. A vault
that fails to load but still answers the probe exits with status 2.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, logger, client, err := openClient(cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		var result health.Result
		src, err := newOneShotSource(ctx, cfg, logger, client)
		if err != nil {
			// A vault that cannot be loaded may still answer the probe.
			if propertysource.Probe(ctx, client, cfg.Source.ProbeSecretName, logger) {
				return err
			}
			result = health.Result{
				Name:    "vault",
				Status:  health.StatusUnhealthy,
				Message: "vault is not reachable",
				Details: map[string]string{"refresh_error": err.Error()},
			}
		} else {
			defer func() { _ = src.Close() }()
			result = health.NewVaultCheck(src).CheckDetailed(ctx)
		}

		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			if err := printJSON(out, result); err != nil {
				return err
			}
		} else {
			printCheck(cmd, result)
		}

		if result.Status == health.StatusUnhealthy {
			return errVaultDown
		}
		return nil
	},
}

func printCheck(cmd *cobra.Command, result health.Result) {
	out := cmd.OutOrStdout()
	switch result.Status {
	case health.StatusHealthy:
		fmt.Fprintf(out, "%s %s is up\n", Green("✓"), result.Name)
	case health.StatusDegraded:
		fmt.Fprintf(out, "%s %s is degraded: %s\n", Yellow("!"), result.Name, result.Message)
	default:
		fmt.Fprintf(out, "%s %s is down: %s\n", Red("✗"), result.Name, result.Message)
		return
	}
	fmt.Fprintf(out, "  Secrets:      %s\n", result.Details["secrets"])
	fmt.Fprintf(out, "  Last refresh: %s\n", formatTimestamp(result.Details["last_refresh"], time.Now()))
}
