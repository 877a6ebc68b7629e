// Command maskflow copies tables between databases, replacing PII columns
// with deterministic synthetic values.
//
//	maskflow run nightly --bundle defs.yaml --user alice
//	maskflow preview email jane@example.com --count 3
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
