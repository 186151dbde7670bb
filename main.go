package main

import (
	"github.com/denis-ismailaj/wharf/cmd"
	"os"
)

func main() {
	if err := cmd.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
