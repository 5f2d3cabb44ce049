// Package main is the entry point for the clq CLI.
package main

import "github.com/carbonledger/clq/internal/cli"

func main() {
	cli.Execute()
}
