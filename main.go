// The main package for the vinmonitor executable.
package main

import (
	"github.com/JakeFAU/vin-monitor/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
