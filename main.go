package main

import (
	"os"

	"github.com/conneroisu/themesmith/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
