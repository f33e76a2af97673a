// Package main is the single-binary entrypoint for Fluentia.
package main

import "github.com/fluentia/fluentia/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
