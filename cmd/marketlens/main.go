// Package main is the MarketLens entry point.
package main

import (
	"os"

	"github.com/marketlens/marketlens/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
