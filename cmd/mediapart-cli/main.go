package main

import (
	"mediapart-bills/cmd/mediapart-cli/commands"
	"mediapart-bills/pkg/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
