// Command pyromaniac runs a USB mass-imaging station
package main

import (
	"os"

	"github.com/pyromaniac/pyromaniac/pkg/cli"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
