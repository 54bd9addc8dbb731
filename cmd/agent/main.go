package main

import (
	"kite-agent/cmd/agent/commands"
	"kite-agent/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
