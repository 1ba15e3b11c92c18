// Copyright © 2016 The Jet authors

package main

import "github.com/swgillespie/jet/cmd"

func main() {
	cmd.Execute()
}
