package main

import "archpub/cmd/archpub/commands"

func main() {
	commands.Execute()
}
