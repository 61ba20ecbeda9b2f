// ./main.go
package main

import (
	"github.com/xkilldash9x/shroud/cmd"
)

// main is the entry point for the shroud CLI.
func main() {
	cmd.Execute()
}
