package main

import (
	"os"

	"github.com/psantana5/fnhost/cmd/fnhost/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
