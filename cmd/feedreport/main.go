package main

import "github.com/mohamedkhairy/feedmix/internal/cli"

func main() {
	cli.Execute()
}
