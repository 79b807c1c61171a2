// Command govctl is the operator CLI of the governance service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bizcore.io/governance/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
