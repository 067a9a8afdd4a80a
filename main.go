package main

import "github.com/aceteam-ai/relaycache/cmd"

func main() {
	cmd.Execute()
}
