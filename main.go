package main

import (
	"github.com/shopaura/storefront/cmd"
)

func main() {
	cmd.Start()
}
