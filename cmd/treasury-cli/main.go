package main

import (
	"os"

	"treasury/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
