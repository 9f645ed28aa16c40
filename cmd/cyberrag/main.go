// Command cyberrag compares plain vector retrieval with knowledge graph
// augmented retrieval over a cybersecurity corpus.
//
// Subcommands:
//
//	experiment  run both methods over the dataset and write reports
//	multi       repeat the experiment for several provider/model pairs
//	demo        walk through the knowledge graph and both retrieval paths
//	graph       inspect or export the knowledge graph
//	serve       expose the engines and run history over HTTP
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/scrypster/cyberrag/internal/config"
)

// Exit codes.
const (
	exitSuccess     = 0
	exitError       = 1
	exitCancelled   = 4
	exitConfigError = 10
)

func main() {
	err := Execute(context.Background())
	os.Exit(exitCode(err))
}

// exitCode prints err and maps it to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "Operation cancelled")
		return exitCancelled
	case errors.Is(err, config.ErrInvalidConfig):
		fmt.Fprintln(os.Stderr, "Configuration error:", err)
		return exitConfigError
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitError
	}
}
