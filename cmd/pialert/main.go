package main

import (
	"fmt"
	"os"

	"github.com/pialert/pialert/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pialert:", err)
		os.Exit(1)
	}
}
