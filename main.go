// Package main is the entry point for the forecast-engine CLI.
package main

import "sfs/forecast-engine/cmd"

func main() {
	cmd.Execute()
}
