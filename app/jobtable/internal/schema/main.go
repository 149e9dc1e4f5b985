// Command schema writes the job table JSON schema to the file given as the first argument,
// schema.json by default. Invoked by go generate in the jobtable package.
package main

import (
	"fmt"
	"os"

	"github.com/umputun/backups/app/jobtable"
)

func main() {
	data, err := jobtable.Schema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "can't make schema: %v\n", err)
		os.Exit(1)
	}

	outputPath := "schema.json"
	if len(os.Args) > 1 {
		outputPath = os.Args[1]
	}
	if err := os.WriteFile(outputPath, append(data, '\n'), 0o644); err != nil { //nolint:gosec // schema is public
		fmt.Fprintf(os.Stderr, "can't write schema to %s: %v\n", outputPath, err)
		os.Exit(1)
	}
	fmt.Printf("job table schema written to %s\n", outputPath)
}
