// protestctl is the command-line interface for the protest engine.
package main

import (
	"os"

	"github.com/fairclaim/protest-engine/internal/interfaces/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
