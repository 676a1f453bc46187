package main

import (
	"os"

	"github.com/clipper-ai/clipperd/cmd/clipctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
