package main

import "github.com/atlasserver/atlasai/cmd"

func main() {
	cmd.Execute()
}
