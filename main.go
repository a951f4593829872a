package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/celder/histmove/cmd/cli"
)

const (
	errorLinePrefixConstant   = "ERROR: "
	errorLineTemplateConstant = "%s%s\n"
	errorLineSeparator        = "\n"
)

// main executes the histmove command-line application. Accumulated errors are
// joined with newlines, so every line is reported with its own prefix.
func main() {
	if executionError := cli.Execute(); executionError != nil {
		for _, errorLine := range strings.Split(executionError.Error(), errorLineSeparator) {
			fmt.Fprintf(os.Stderr, errorLineTemplateConstant, errorLinePrefixConstant, errorLine)
		}
		os.Exit(1)
	}
}
