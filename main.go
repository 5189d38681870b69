package main

import "algomind/cmd"

func main() {
	cmd.Execute()
}
