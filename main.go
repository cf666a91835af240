package main

import "github.com/edgeflare/retailpipe/cmd/retailpipe"

func main() {
	retailpipe.Main()
}
