package main

import (
	cmd "github.com/renderiq/render-server/cmd/renderd"
)

func main() {
	cmd.Execute()
}
