// Command funch evolves a marked Go function inside a template by asking a
// generative model for rewrites, validating them in a sandbox and keeping the
// best-scoring candidates.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
