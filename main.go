package main

import "audiovault/cmd"

func main() {
	cmd.Execute()
}
