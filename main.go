package main

import (
	"os"

	"github.com/crmvault/crmvault/cmd"
)

var version = "dev"

func main() {
	if version == "dev" {
		if v, ok := os.LookupEnv("GIT_SHA"); ok && v != "" {
			version = v
		}
	}
	cmd.Version = version
	cmd.Execute()
}
