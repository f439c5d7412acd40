// Command convctx inspects and drives a conversation context engine.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "convctx:", err)
		os.Exit(1)
	}
}
