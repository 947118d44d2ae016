// ABOUTME: CLI entry point for ucm-bridge
// ABOUTME: Runs the cobra command tree and maps errors to the exit status

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := execute(newApp(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// execute runs one command and releases what setup started, whether or
// not the command succeeded.
func execute(a *app, args []string, stdout, stderr io.Writer) error {
	defer a.shutdown()
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}
