// Package main is the entry point for echoscan, an offline ICMP capture analyzer.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/echoscan/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
