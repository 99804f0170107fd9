// Command symposium runs the persona chat engine.
//
// Usage:
//
//	symposium serve                         - HTTP and websocket API
//	symposium chat --persona socrates       - one-on-one chat in the terminal
//	symposium chat --persona plato --persona nietzsche
//	                                        - terminal debate between personas
//
// Configuration is read from SYMPOSIUM_* environment variables; flags
// override them.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
