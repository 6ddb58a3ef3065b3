// Command flyerctl inspects the flyer dataset from the terminal.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(loadApp, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
