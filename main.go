package main

import "github.com/iksnae/doc-chat/cmd"

func main() {
	cmd.Execute()
}
