package main

import (
	"os"

	"github.com/spark-playbook/playbook/cmd/playbookctl/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
