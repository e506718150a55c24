package main

import (
	"os"

	"taskdeck/cmd/taskdeck/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], os.Stdout, os.Stderr, &cmd.Config{}))
}
