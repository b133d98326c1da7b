package main

import "moray/cmd"

func main() {
	cmd.Execute()
}
