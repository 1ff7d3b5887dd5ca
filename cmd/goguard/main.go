// Command goguard runs a reference goGuard server and offers session and
// CSRF-store diagnostics.
package main

import "github.com/MrEthical07/goGuard/cmd/goguard/cmd"

func main() {
	cmd.Execute()
}
