package main

import (
	"fmt"
	"strings"
	"unicode/utf8"

	masker "github.com/goliatone/go-masker"
	"github.com/spf13/cobra"
)

var revealValue bool

// getCmd reads one property.
var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Read one property",
	Long: `Load the vault and print one property. The name may use any relaxed
spelling: db.password, DB_PASSWORD and db-password all resolve to the same
secret unless case-sensitive naming is configured.

The value is masked unless --reveal is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, err := openSource(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()

		name := args[0]
		value, ok := src.GetProperty(name)
		if !ok {
			return fmt.Errorf("property %q not found", name)
		}
		if !revealValue {
			value = maskValue(value)
		}

		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			return printJSON(out, map[string]any{
				"name":       name,
				"vault_name": src.Canonical(name),
				"value":      value,
				"masked":     !revealValue,
			})
		}
		printTable(out, []string{"NAME", "VAULT NAME", "VALUE"}, [][]string{
			{Bold(name), src.Canonical(name), value},
		})
		return nil
	},
}

// listCmd lists the property names the vault resolves.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List property names",
	Long:  `Load the vault and list every property name it resolves. Values are not printed.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, err := openSource(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()

		names := src.GetPropertyNames()
		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			if names == nil {
				names = []string{}
			}
			return printJSON(out, map[string]any{
				"mode":    src.Mode().String(),
				"secrets": src.Len(),
				"names":   names,
			})
		}

		if len(names) == 0 {
			fmt.Fprintln(out, Dim("No properties found"))
			return nil
		}
		rows := make([][]string, 0, len(names))
		for _, name := range names {
			rows = append(rows, []string{name, src.Canonical(name)})
		}
		printTable(out, []string{"NAME", "VAULT NAME"}, rows)
		fmt.Fprintf(out, "\n%s\n", Dim(fmt.Sprintf("%d secrets, %d names (%s mode)", src.Len(), len(names), src.Mode())))
		return nil
	},
}

// maskValue hides all but the ends of a secret value.
func maskValue(value string) string {
	n := utf8.RuneCountInString(value)
	if n <= 4 {
		return strings.Repeat("*", n)
	}
	if masked, err := masker.Default.String("preserveEnds(2,2)", value); err == nil && masked != value {
		return masked
	}
	runes := []rune(value)
	return string(runes[:2]) + strings.Repeat("*", n-4) + string(runes[n-2:])
}

func init() {
	getCmd.Flags().BoolVar(&revealValue, "reveal", false, "Print the value in clear text")
}
