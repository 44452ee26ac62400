// Package main provides the leobit-sync process for desktop platforms.
// Desktop clients talk to the local sync engine via REST/WebSocket on
// localhost; the engine drains the queue to the remote sync API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
