package main

import "github.com/kozaktomas/picarch/cmd"

func main() {
	cmd.Execute()
}
