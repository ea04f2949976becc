package main

import "github.com/Mohsinsiddi/txscan/cmd"

func main() {
	cmd.Execute()
}
