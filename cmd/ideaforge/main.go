package main

import "github.com/ideaforge/ideaforge/internal/cli"

func main() {
	cli.Execute()
}
