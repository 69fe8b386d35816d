// The main package for the empire-server executable.
package main

import (
	"github.com/JakeFAU/empire-server/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
