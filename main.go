package main

import "github.com/failwarn/corstester/cmd"

func main() {
	cmd.Execute()
}
