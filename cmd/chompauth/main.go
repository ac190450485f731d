package main

import "github.com/thechompapp/chompauth/cmd/chompauth/cmd"

func main() {
	cmd.Execute()
}
