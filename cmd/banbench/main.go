package main

import (
	"os"

	"github.com/ashgrove-sec/banbench/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
