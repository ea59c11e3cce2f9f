package main

import "rbz-rates-watcher/internal/cli"

func main() {
	cli.Execute()
}
