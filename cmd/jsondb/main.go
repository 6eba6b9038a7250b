package main

import (
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/tobsdb/jsondb/internal/config"
	"github.com/tobsdb/jsondb/pkg"
)

type Globals struct {
	Config   string `short:"c" default:"jsondb.yaml" help:"Path to the config file."`
	DataDir  string `help:"Override the data directory."`
	Storage  string `help:"Override the storage backend (dir, bolt, memory)."`
	LogLevel string `help:"Override the log level (none, error, debug)."`

	out io.Writer `kong:"-"`
}

// load reads the config file and applies command line overrides.
func (g *Globals) load() (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.DataDir != "" {
		cfg.DataDir = g.DataDir
	}
	if g.Storage != "" {
		cfg.Storage = g.Storage
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ApplyLogLevel(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type CLI struct {
	Globals

	Serve  ServeCmd  `cmd:"" help:"Serve the database over websockets."`
	Check  CheckCmd  `cmd:"" help:"Check a schema file for errors."`
	Dump   DumpCmd   `cmd:"" help:"Print every record of a table as JSON lines."`
	Schema SchemaCmd `cmd:"" help:"Print the JSON Schema of a table."`
	Demo   DemoCmd   `cmd:"" help:"Run a short demo against an in-memory database."`
}

func run(args []string, out io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("jsondb"),
		kong.Description("An embedded, file-backed record store."),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	cli.Globals.out = out
	return ctx.Run(&cli.Globals)
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		pkg.FatalLog(err.Error())
	}
}
