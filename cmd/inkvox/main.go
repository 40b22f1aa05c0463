package main

import (
	"os"

	"github.com/inkvox/inkvox/cmd/inkvox/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
