package main

import "gerritevents/cmd"

func main() {
	cmd.Execute()
}
