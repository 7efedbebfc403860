// The main package for the spider executable.
package main

import (
	"github.com/JakeFAU/spider/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
