package main

import (
	"github.com/luma/redisclient/cmd"
)

func main() {
	cmd.Execute()
}
