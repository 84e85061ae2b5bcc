package main

import (
	"os"

	"github.com/G-Research/popgen/cmd/popgen/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
