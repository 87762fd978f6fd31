// Command cachectl inspects and maintains a venuecache persistent store and
// runs a synthetic deduplication workload against the cache stack.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/IvanBrykalov/venuecache/caches"
	"github.com/IvanBrykalov/venuecache/config"
)

var app *cli.App

func init() {
	app = &cli.App{
		Name:  "cachectl",
		Usage: "inspect and maintain a venuecache store",
		Flags: []cli.Flag{
			backendFlag,
			pathFlag,
			prefixFlag,
			schemaFlag,
			quotaFlag,
		},
	}
	app.Commands = []*cli.Command{
		commandKeys,
		commandGet,
		commandRemove,
		commandCleanup,
		commandClearAuth,
		commandBench,
	}
}

// Store selection flags. Unset flags fall back to the VENUECACHE_*
// environment.
var (
	backendFlag = &cli.StringFlag{
		Name:  "backend",
		Usage: "storage backend: memory | sqlite | leveldb",
	}
	pathFlag = &cli.StringFlag{
		Name:  "path",
		Usage: "sqlite file or leveldb directory",
	}
	prefixFlag = &cli.StringFlag{
		Name:  "prefix",
		Usage: "key namespace of the store",
	}
	schemaFlag = &cli.StringFlag{
		Name:  "schema",
		Usage: "schema version; entries of any other version are discarded",
	}
	quotaFlag = &cli.Int64Flag{
		Name:  "quota",
		Usage: "byte quota of the backend",
	}
)

// loadConfig merges the environment with the global flags.
func loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if ctx.IsSet(backendFlag.Name) {
		cfg.Storage.Backend = ctx.String(backendFlag.Name)
	}
	if ctx.IsSet(pathFlag.Name) {
		cfg.Storage.Path = ctx.String(pathFlag.Name)
	}
	if ctx.IsSet(prefixFlag.Name) {
		cfg.Storage.Prefix = ctx.String(prefixFlag.Name)
	}
	if ctx.IsSet(schemaFlag.Name) {
		cfg.Storage.Version = ctx.String(schemaFlag.Name)
	}
	if ctx.IsSet(quotaFlag.Name) {
		cfg.Storage.QuotaBytes = ctx.Int64(quotaFlag.Name)
	}
	return cfg, cfg.Validate()
}

// openFactory opens the configured store; the caller closes it.
func openFactory(ctx *cli.Context) (*caches.Factory, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return caches.Open(cfg, caches.Options{
		Logf: func(format string, args ...any) {
			fmt.Fprintf(ctx.App.ErrWriter, format+"\n", args...)
		},
	})
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
