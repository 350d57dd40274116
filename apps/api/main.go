package main

import (
	_ "net/http/pprof" // register the /debug/pprof handlers
)

func main() {
	startWithDig()
}
