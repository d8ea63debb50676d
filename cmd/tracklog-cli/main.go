package main

import (
	"os"
)

func main() {
	if err := newRootCmd(dialGRPC).Execute(); err != nil {
		errorColor.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
