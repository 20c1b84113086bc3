// Command vaultprops loads secrets from Azure Key Vault or HashiCorp
// Vault as property names, and serves, lists or probes them.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
