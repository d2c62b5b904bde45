// Package main implements the medvextract command, which runs the transcript
// extraction API and its operational subcommands.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
