package main

import "github.com/forPelevin/mvsync/internal/cli"

func main() {
	cli.Main()
}
