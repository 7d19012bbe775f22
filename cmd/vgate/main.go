package main

import "github.com/aalvaropc/vgate/internal/cli"

func main() {
	cli.Execute()
}
