package main

import "pgknex/cmd"

func main() {
	cmd.Execute()
}
