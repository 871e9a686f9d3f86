package main

import (
	"fmt"
	"os"

	"github.com/coral-mesh/resmon/internal/cli"
	rerrors "github.com/coral-mesh/resmon/internal/errors"
)

func main() {
	if err := cli.Execute(); err != nil {
		if code, ok := rerrors.CodeOf(err); ok {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v [%s]\n", err, code)
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
