// Package main is the glimm command line: memory capture, backups and
// the local reminder daemon.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
