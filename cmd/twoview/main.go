package main

import "github.com/MeKo-Tech/twoview/cmd/twoview/cmd"

func main() {
	cmd.Execute()
}
