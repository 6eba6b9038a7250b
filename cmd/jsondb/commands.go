package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tobsdb/jsondb"
	"github.com/tobsdb/jsondb/codec"
	"github.com/tobsdb/jsondb/internal/auth"
	"github.com/tobsdb/jsondb/internal/conn"
	"github.com/tobsdb/jsondb/internal/parser"
	"github.com/tobsdb/jsondb/pkg"
	"github.com/tobsdb/jsondb/types"
)

type ServeCmd struct {
	Port     int    `short:"p" help:"Listening port."`
	User     string `short:"u" env:"JSONDB_USER" help:"Name of the admin user."`
	Password string `env:"JSONDB_PASS" help:"Password of the admin user."`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.User != "" {
		cfg.Server.Username = c.User
	}
	if c.Password != "" {
		cfg.Server.Password = c.Password
	}
	if cfg.Server.Username == "" || cfg.Server.Password == "" {
		return errors.New("an admin username and password are required")
	}

	users := auth.NewUsers()
	root, err := auth.NewUser(cfg.Server.Username, cfg.Server.Password, auth.UserRoleAdmin)
	if err != nil {
		return err
	}
	if err := users.Add(root); err != nil {
		return err
	}

	db, err := cfg.Open()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return conn.NewServer(db, users, cfg.Server).Listen(ctx)
}

type CheckCmd struct {
	Path string `arg:"" optional:"" default:"./schema.tdb" help:"Schema file to check."`
}

func (c *CheckCmd) Run(g *Globals) error {
	fmt.Fprintf(g.out, "Checking %s for errors\n", c.Path)

	data, err := os.ReadFile(c.Path)
	if err != nil {
		return err
	}
	defs, err := parser.ParseSchema(string(data))
	if err != nil {
		return fmt.Errorf("invalid schema; %w", err)
	}
	for _, def := range defs {
		fmt.Fprintf(g.out, "  %s: %d fields, %d indexes\n",
			def.Name, len(def.Schema.Fields()), len(def.Indexes))
	}
	fmt.Fprintln(g.out, "Schema checks successful: Schema is valid")
	return nil
}

type DumpCmd struct {
	Table string `arg:"" help:"Table to dump."`
}

func (c *DumpCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	db, err := cfg.Open()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Select(c.Table)
	if err != nil {
		return err
	}
	for _, row := range rows {
		v, err := types.Normalize(row)
		if err != nil {
			return err
		}
		line, err := codec.MarshalValue(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(g.out, string(line))
	}
	return nil
}

type SchemaCmd struct {
	Table string `arg:"" help:"Table to describe."`
}

func (c *SchemaCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	db, err := cfg.Open()
	if err != nil {
		return err
	}
	defer db.Close()

	schema, err := db.Schema(c.Table)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(schema.JSONSchema(c.Table), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(g.out, string(out))
	return nil
}

type DemoCmd struct{}

func (c *DemoCmd) Run(g *Globals) error {
	db, err := jsondb.Open(jsondb.Options{})
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.Transaction(func() error {
		err := db.CreateTable("users", jsondb.MustSchema("id",
			jsondb.Field{Name: "id", Type: types.FieldTypeInt},
			jsondb.Field{Name: "name", Type: types.FieldTypeString},
			jsondb.Field{Name: "age", Type: types.FieldTypeInt},
		))
		if err != nil {
			return err
		}
		err = db.CreateTable("posts", jsondb.MustSchema("",
			jsondb.Field{Name: "author", Type: types.FieldTypeInt},
			jsondb.Field{Name: "title", Type: types.FieldTypeString},
		))
		if err != nil {
			return err
		}
		if err := db.CreateIndex("posts", "author"); err != nil {
			return err
		}

		_, err = db.InsertMany("users", []jsondb.Record{
			{"id": 1, "name": "Ada", "age": 36},
			{"id": 2, "name": "Linus", "age": 21},
			{"id": 3, "name": "Grace", "age": 45},
		}, jsondb.ConflictFail)
		if err != nil {
			return err
		}
		_, err = db.InsertMany("posts", []jsondb.Record{
			{"author": 1, "title": "Notes on the engine"},
			{"author": 3, "title": "Compilers"},
			{"author": 3, "title": "Debugging"},
		}, jsondb.ConflictFail)
		return err
	})
	if err != nil {
		return err
	}

	rows, err := db.Query("users").
		Where("age", jsondb.OpGt, 30).
		Join("posts", "id", "author").
		OrderBy("posts.title", jsondb.Asc).
		Select("name", "posts.title").
		All()
	if err != nil {
		return err
	}
	pkg.DebugLog("demo query", "rows", len(rows))

	for _, row := range rows {
		fmt.Fprintf(g.out, "%s wrote %q\n", row["name"], row["posts.title"])
	}
	return nil
}
