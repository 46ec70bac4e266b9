package main

import "solmate-cli/cmd"

func main() {
	cmd.Execute()
}
