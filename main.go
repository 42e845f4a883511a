package main

import "github.com/derickschaefer/gridfetch/cmd"

func main() {
	cmd.Execute()
}
