package main

import (
	"os"

	"github.com/Bkbest/calendar-agent/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
