package main

import "github.com/kozaktomas/face-organizer/cmd"

func main() {
	cmd.Execute()
}
