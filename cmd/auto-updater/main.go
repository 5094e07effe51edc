package main

import "github.com/oshokin/auto-updater/cmd/auto-updater/cmd"

func main() {
	cmd.Execute()
}
