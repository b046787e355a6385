package main

import (
	"fmt"
	"os"
)

// Set by the build with -ldflags.
var (
	Version   = "dev"
	BuildTime = ""
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
