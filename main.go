// Public domain.

package main

import "github.com/soniakeys/srcid/internal/srcprog"

func main() {
	srcprog.Main()
}
