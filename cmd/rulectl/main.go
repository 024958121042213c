package main

import "github.com/upreach/ruleengine/internal/cli"

func main() {
	cli.Execute()
}
