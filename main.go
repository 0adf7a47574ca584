package main

import "github.com/Alijeyrad/tabib_backend/cmd"

func main() {
	cmd.Execute()
}
