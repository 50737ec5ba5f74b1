package main

import (
	"os"

	"github.com/unbundle/unbundle/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
