// Package main provides the entry point for the prospect CLI.
package main

import (
	"github.com/colthorp/prospect/internal/cli"
)

func main() {
	cli.Execute()
}
