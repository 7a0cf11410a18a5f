package main

import (
	"os"

	"github.com/just-amazing/vps-sentinel/cmd"
)

func main() {
	code := cmd.Execute()
	os.Exit(code)
}
