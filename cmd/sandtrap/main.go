// Package main is the entry point for the sandtrap CLI.
package main

import (
	"fmt"
	"os"

	"github.com/sandtrap-sec/sandtrap/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCodeOf(err))
	}
}
