// The main package for the leaders-scraper executable.
package main

import (
	"github.com/JakeFAU/country-leaders-scraper/cmd"
)

func main() {
	cmd.Execute()
}
