package main

import (
	"github.com/onerandomusername/AceBot/cmd"
)

func main() {
	cmd.Execute()
}
