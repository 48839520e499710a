package main

import "github.com/exec-heatmap/cmd/heatmap/cmd"

func main() {
	cmd.Execute()
}
