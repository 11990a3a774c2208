package main

import "github.com/tinyclaw/tinyclaw/cmd"

func main() {
	cmd.Execute()
}
