package main

import "github.com/KaramelBytes/cropctx/cmd"

func main() {
	cmd.Execute()
}
