// Command tileworld-server runs the real-time tile-world game server.
package main

import (
	"fmt"
	"os"

	"tileworld.dev/server/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
