package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/satmihir/justlru/internal/client"
)

var serverFlag = &cli.StringSliceFlag{
	Name:    "server",
	Aliases: []string{"s"},
	Value:   cli.NewStringSlice("http://localhost:7070"),
	Usage:   "server URL; repeat to spread keys over several servers",
	EnvVars: []string{"JUSTLRU_SERVERS"},
}

func newPool(c *cli.Context) (*client.Pool, error) {
	return client.NewPool(c.StringSlice("server"))
}

var getCommand = &cli.Command{
	Name:      "get",
	Usage:     "print a cached value",
	ArgsUsage: "KEY",
	Flags:     []cli.Flag{serverFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("usage: justlru get KEY", 2)
		}
		pool, err := newPool(c)
		if err != nil {
			return err
		}
		entry, err := pool.Get(c.Context, c.Args().First())
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s\n", entry.Value)
		return nil
	},
}

var setCommand = &cli.Command{
	Name:      "set",
	Usage:     "store a value",
	ArgsUsage: "KEY VALUE",
	Flags: []cli.Flag{
		serverFlag,
		&cli.DurationFlag{Name: "ttl", Usage: "entry lifetime, server default if unset"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return cli.Exit("usage: justlru set KEY VALUE", 2)
		}
		pool, err := newPool(c)
		if err != nil {
			return err
		}
		return pool.Set(c.Context, c.Args().Get(0), []byte(c.Args().Get(1)), c.Duration("ttl"))
	},
}

var delCommand = &cli.Command{
	Name:      "del",
	Usage:     "delete a key",
	ArgsUsage: "KEY",
	Flags:     []cli.Flag{serverFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("usage: justlru del KEY", 2)
		}
		pool, err := newPool(c)
		if err != nil {
			return err
		}
		return pool.Delete(c.Context, c.Args().First())
	},
}

var statsCommand = &cli.Command{
	Name:  "stats",
	Usage: "print each server's counters as JSON",
	Flags: []cli.Flag{
		serverFlag,
		&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second},
	},
	Action: func(c *cli.Context) error {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		for _, url := range c.StringSlice("server") {
			st, err := client.New(url, client.WithTimeout(c.Duration("timeout"))).Stats(c.Context)
			if err != nil {
				return fmt.Errorf("%s: %w", url, err)
			}
			if err := enc.Encode(map[string]any{"server": url, "stats": st}); err != nil {
				return err
			}
		}
		return nil
	},
}
