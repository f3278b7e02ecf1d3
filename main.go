package main

import "github.com/kychandar/gqlwsc/cmd"

func main() {
	cmd.Execute()
}
