package main

import "github.com/twiced-technology-gmbh/taskorder/cmd"

func main() {
	cmd.Execute()
}
