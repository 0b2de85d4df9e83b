package main

import (
	"fmt"
	"os"

	"github.com/loqalabs/loqa-keywords/internal/cli"
)

func main() {
	if err := cli.NewRootCmd(&cli.Dependencies{Stdin: os.Stdin}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
