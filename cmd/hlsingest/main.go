// Command hlsingest drives the HLS ingest engine: probing a manifest and
// printing what was resolved, or serving its virtual byte stream over a
// debug HTTP server.
package main

import (
	"os"

	"github.com/vodlive/hlsingest/cmd/hlsingest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
