package main

import "linerelay/cmd"

func main() {
	cmd.Execute()
}
