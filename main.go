package main

import "github.com/icco/hapticd/cmd"

func main() {
	cmd.Execute()
}
