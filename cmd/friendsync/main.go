// Command friendsync maintains a symmetric friendship index over user records
// whose numbers are equal.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/friendsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "friendsync:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
