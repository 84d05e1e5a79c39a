package main

import (
	"os"

	"github.com/cloudpage/drive/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
