package main

import "github.com/oshokin/onec-updater/cmd/onec-updater/cmd"

func main() {
	cmd.Execute()
}
