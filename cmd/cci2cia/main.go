// Command cci2cia converts 3DS CCI cartridge dumps into CIA files.
package main

import (
	"fmt"
	"os"

	"github.com/sargunv/cci2cia/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
