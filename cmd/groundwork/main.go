package main

import (
	"os"

	"github.com/amesworks/groundwork/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
