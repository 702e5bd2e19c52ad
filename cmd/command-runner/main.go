package main

import "github.com/devicelab-dev/command-runner/pkg/cli"

func main() {
	cli.Execute()
}
