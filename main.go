package main

import "github.com/denysvitali/filexchange/cmd"

func main() {
	cmd.Execute()
}
