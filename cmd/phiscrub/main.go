package main

import (
	"os"

	"github.com/dshills/phiscrub/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
