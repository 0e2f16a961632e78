// Package main is the entry point for the tunbridge daemon and CLI.
package main

import (
	"fmt"
	"os"

	"icc.tech/tunbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
