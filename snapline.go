package main

import (
	"github.com/snapline/snapline/cmd"
)

func main() {
	cmd.Execute()
}
