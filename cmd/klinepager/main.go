package main

import "kline-pager/internal/cli"

func main() {
	cli.Execute()
}
