package main

import (
	"os"

	"github.com/scrip-network/scrip/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
