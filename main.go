package main

import (
	"os"

	"github.com/mrcrypt/mrcrypt/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
