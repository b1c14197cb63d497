package main

import "github.com/kithnet/server-core/internal"

func main() {
	internal.Init()
}
