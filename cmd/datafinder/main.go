// Command datafinder searches spreadsheets by multi-criteria matching and
// merges contact phone numbers into client workbooks.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Overload lets a local .env win over inherited variables; a missing
	// file is fine.
	envLoaded := godotenv.Overload() == nil

	if err := execute(os.Args[1:], os.Stdout, os.Stderr, envLoaded); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
