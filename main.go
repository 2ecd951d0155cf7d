package main

import "github.com/agentic-research/atelier/cmd"

func main() {
	cmd.Execute()
}
