package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conductor/vaultprops/internal/naming"
)

var translateCaseSensitive bool

// translation is one row of translate output.
type translation struct {
	Name      string `json:"name"`
	VaultName string `json:"vault_name"`
	Valid     bool   `json:"valid"`
}

// translateCmd shows how property names map to vault names. It never
// contacts the vault.
var translateCmd = &cobra.Command{
	Use:   "translate <name>...",
	Short: "Show the vault name for property names",
	Long: `Translate property names to the vault's restricted alphabet [0-9a-zA-Z-].

Examples:
  vaultprops translate db.password DB_PASSWORD acme.myProject.person.firstName`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows := make([]translation, 0, len(args))
		for _, name := range args {
			canonical := naming.Canonical(name, translateCaseSensitive)
			rows = append(rows, translation{
				Name:      name,
				VaultName: canonical,
				Valid:     naming.Valid(canonical),
			})
		}

		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			return printJSON(out, rows)
		}
		table := make([][]string, 0, len(rows))
		for _, r := range rows {
			table = append(table, []string{r.Name, r.VaultName, formatBool(r.Valid)})
		}
		printTable(out, []string{"NAME", "VAULT NAME", "VALID"}, table)
		if !allValid(rows) {
			fmt.Fprintf(out, "\n%s\n", Yellow("Some names cannot be stored in the vault as given."))
		}
		return nil
	},
}

func allValid(rows []translation) bool {
	for _, r := range rows {
		if !r.Valid {
			return false
		}
	}
	return true
}

func init() {
	translateCmd.Flags().BoolVar(&translateCaseSensitive, "case-sensitive", false, "Use names as given")
}
