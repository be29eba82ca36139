package main

import "github.com/sadopc/teamworkflow/internal/cli"

func main() {
	cli.Execute()
}
