package main

import "github.com/oshokin/plug-power/cmd/plug-power/cmd"

func main() {
	cmd.Execute()
}
