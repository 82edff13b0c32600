package main

import "felloe/internal/cli"

func main() {
	cli.Execute()
}
