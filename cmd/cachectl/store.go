package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

var keyPrefixFlag = &cli.StringFlag{
	Name:  "match",
	Usage: "only list keys starting with this prefix",
}

var commandKeys = &cli.Command{
	Name:  "keys",
	Usage: "list readable entries",
	Description: `
Lists every readable entry in the store with its age and ttl. Reading an
entry that is expired, corrupted, or of another schema version removes it,
exactly as the application would.`,
	Flags: []cli.Flag{keyPrefixFlag},
	Action: func(ctx *cli.Context) error {
		f, err := openFactory(ctx)
		if err != nil {
			return err
		}
		defer f.Close()

		m := f.Storage()
		table := tablewriter.NewWriter(ctx.App.Writer)
		table.SetHeader([]string{"Key", "Created", "TTL", "Version", "Bytes"})
		for _, k := range m.KeysWithPrefix(ctx.String(keyPrefixFlag.Name)) {
			e, ok := m.Entry(k)
			if !ok {
				continue
			}
			ttl := "never"
			if e.TTL > 0 {
				ttl = e.TTL.String()
			}
			table.Append([]string{
				k,
				e.CreatedAt.UTC().Format(time.RFC3339),
				ttl,
				e.Version,
				strconv.Itoa(len(e.Data)),
			})
		}
		table.Render()
		return nil
	},
}

var commandGet = &cli.Command{
	Name:      "get",
	Usage:     "print the JSON payload of an entry",
	ArgsUsage: "<key>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("get: exactly one key expected")
		}
		f, err := openFactory(ctx)
		if err != nil {
			return err
		}
		defer f.Close()

		e, ok := f.Storage().Entry(ctx.Args().First())
		if !ok {
			return fmt.Errorf("get: %q not found", ctx.Args().First())
		}
		fmt.Fprintln(ctx.App.Writer, string(e.Data))
		return nil
	},
}

var commandRemove = &cli.Command{
	Name:      "rm",
	Usage:     "remove entries",
	ArgsUsage: "<key> [<key>...]",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() == 0 {
			return fmt.Errorf("rm: at least one key expected")
		}
		f, err := openFactory(ctx)
		if err != nil {
			return err
		}
		defer f.Close()

		for _, k := range ctx.Args().Slice() {
			f.Storage().RemoveItem(k)
		}
		return nil
	},
}

var commandCleanup = &cli.Command{
	Name:  "cleanup",
	Usage: "remove expired, corrupted, and stale-version entries",
	Action: func(ctx *cli.Context) error {
		f, err := openFactory(ctx)
		if err != nil {
			return err
		}
		defer f.Close()

		rep := f.Storage().PerformCleanup()
		fmt.Fprintf(ctx.App.Writer, "expired=%d corrupted=%d\n", rep.Expired, rep.Corrupted)
		return nil
	},
}

var commandClearAuth = &cli.Command{
	Name:  "clear-auth",
	Usage: "remove tokens and session data (log out)",
	Action: func(ctx *cli.Context) error {
		f, err := openFactory(ctx)
		if err != nil {
			return err
		}
		defer f.Close()

		f.Storage().ClearAuthData()
		return nil
	},
}
