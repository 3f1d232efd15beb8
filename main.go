package main

import (
	"os"

	"github.com/convoguard/convoguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
