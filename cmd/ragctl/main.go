package main

import "github.com/skryne/ragd/internal/cli"

func main() {
	cli.Execute()
}
