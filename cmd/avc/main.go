// Command avc saves and reads article versions from the command line.
package main

import (
	"os"

	"github.com/kilupskalvis/avc/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
