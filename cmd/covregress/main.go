package main

import (
	"fmt"
	"os"

	"github.com/zjy-dev/covregress/cmd/covregress/app"
)

func main() {
	if err := app.NewCovregressCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
