package main

import "github.com/Mofasaz/aegisai-web/internal/cli"

func main() {
	cli.Execute()
}
