package main

import (
	"xsheet-companion/cmd/xsheet/commands"
	"xsheet-companion/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
