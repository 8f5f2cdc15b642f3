package main

import "github.com/dimuls/jdlib/internal/cli"

func main() {
	cli.Execute()
}
