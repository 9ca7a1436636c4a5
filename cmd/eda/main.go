// cmd/eda/main.go
package main

import (
	cmd "github.com/mwiater/eda/internal/cli"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	setVersion = func(v string) { cmd.Version = v }
	executeCmd = cmd.Execute
)

// main starts the eda CLI by delegating to the cobra root command.
func main() {
	setVersion(version)
	executeCmd()
}
