package main

import "github.com/bitey-pm/bitey/pkg/cmd"

func main() {
	cmd.Execute()
}
