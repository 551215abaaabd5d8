// The main package for the cratesync executable.
package main

import (
	"os"

	"github.com/crateloft/cratesync/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
