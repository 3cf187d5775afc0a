// Package main provides the entry point for the eventindexer CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/eventindexer/cmd/eventindexer/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
