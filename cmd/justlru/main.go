// Command justlru runs the cache server, talks to one as a client, and
// demonstrates the in-process LRU cache and memoizer.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "justlru",
		Usage: "bounded LRU cache, memoizer and cache server",
		Commands: []*cli.Command{
			serveCommand,
			demoCommand,
			benchCommand,
			getCommand,
			setCommand,
			delCommand,
			statsCommand,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
