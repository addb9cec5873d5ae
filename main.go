package main

import "github.com/ValentinKolb/docdb/cmd"

func main() {
	cmd.Execute()
}
