// Package main is the entry point for the agentfit CLI.
package main

import (
	"agentfit/cli/cmd"
)

func main() {
	cmd.Execute()
}
