package main

import "github.com/dtnghia/merchgate/internal/cli"

func main() {
	cli.Execute()
}
