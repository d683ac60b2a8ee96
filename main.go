package main

import "github.com/mselser95/dualleg-arb/cmd"

func main() {
	cmd.Execute()
}
