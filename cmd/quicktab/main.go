package main

import "github.com/quicktab/quicktab/cmd/quicktab/commands"

func main() {
	commands.Execute()
}
