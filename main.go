package main

import "github.com/zostay/keyrotate/cmd"

func main() {
	cmd.Execute()
}
