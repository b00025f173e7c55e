// Command carbonledger tracks emission allowances and tradeable carbon
// credits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/carbonledger/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
