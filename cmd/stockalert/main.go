package main

import "stock-threshold-alerts/internal/cli"

func main() {
	cli.Execute()
}
