package main

import (
	"os"

	"github.com/conneroisu/apex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
