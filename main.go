package main

import "github.com/respiralab/coughdx/cmd"

func main() {
	cmd.Execute()
}
