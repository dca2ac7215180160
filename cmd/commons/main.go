package main

import (
	"os"

	"github.com/openforge/commons/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
