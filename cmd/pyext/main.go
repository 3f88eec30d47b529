package main

import "github.com/goplus/pyext/cmd/pyext/internal"

func main() {
	internal.Execute()
}
