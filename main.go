package main

import "github.com/Yates-Labs/prselect/cmd"

func main() {
	cmd.Execute()
}
