package main

import "fs-delta-tracker/internal/cli"

func main() {
	cli.Execute()
}
