package main

import "github.com/tansive/apiaccess/internal/cli"

func main() {
	cli.Execute()
}
