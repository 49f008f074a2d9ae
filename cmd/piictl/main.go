package main

import "github.com/raaihank/piiwatch/internal/cli"

func main() {
	cli.Execute()
}
