// The main package for the scholarship-finder executable.
package main

import (
	"github.com/JakeFAU/scholarship-finder/cmd"
)

func main() {
	cmd.Execute()
}
