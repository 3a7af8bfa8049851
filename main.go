// Command lexharvest harvests Official Journal documents into a local record store.
package main

import "github.com/JakeFAU/lexharvest/cmd"

func main() {
	cmd.Execute()
}
