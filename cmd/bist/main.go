package main

import "github.com/OpenTraceLab/bistio/cmd/bist/cmd"

func main() {
	cmd.Execute()
}
