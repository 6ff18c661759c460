// Command mt2qml converts mtinv moment tensor reports to QuakeML.
//
// Usage:
//
//	mt2qml convert report.txt > event.xml
//	mt2qml convert --out-dir qml/ --format json reports/*.txt
//	mt2qml check reports/*.txt
//	mt2qml watch --out-dir qml/ incoming/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(clockwork.NewRealClock()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
