package main

import "github.com/itsmostafa/pagetree/cmd"

func main() {
	cmd.Execute()
}
