package main

import (
	"fmt"
	"os"

	"transformstate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tsctl:", err)
		os.Exit(1)
	}
}
