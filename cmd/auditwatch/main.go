package main

import (
	"os"

	"github.com/auditwatch/auditwatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
