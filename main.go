// The main package for the scrape-gateway executable.
package main

import "github.com/JakeFAU/scrape-gateway/cmd"

func main() {
	cmd.Execute()
}
