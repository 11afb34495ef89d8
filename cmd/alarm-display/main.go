package main

import "github.com/oshokin/alarm-display/cmd/alarm-display/cmd"

func main() {
	cmd.Execute()
}
