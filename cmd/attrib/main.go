package main

import (
	"os"

	"github.com/attrib-app/attrib/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
