package main

import (
	"os"

	"github.com/markjoshwel/raiseattention/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(2)
	}
}
