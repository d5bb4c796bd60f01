package main

import "github.com/alechenninger/httppolicy/internal/cli"

func main() {
	cli.Execute()
}
