package main

import (
	"fmt"
	"os"

	"github.com/vijaygupta18/multidb/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "multidb:", err)
		os.Exit(1)
	}
}
