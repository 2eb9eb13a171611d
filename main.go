package main

import "github.com/ValentinKolb/tpcKV/cmd"

func main() {
	cmd.Execute()
}
