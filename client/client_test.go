package client_test

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tobsdb/jsondb"
	"github.com/tobsdb/jsondb/client"
	"github.com/tobsdb/jsondb/internal/auth"
	"github.com/tobsdb/jsondb/internal/config"
	"github.com/tobsdb/jsondb/internal/conn"
	"github.com/tobsdb/jsondb/types"
	"gotest.tools/assert"
)

func newTestClient(t *testing.T, name string) *client.Client {
	db, err := jsondb.Open(jsondb.Options{})
	assert.NilError(t, err)

	users := auth.NewUsers()
	root, err := auth.NewUser("root", "pw", auth.UserRoleAdmin)
	assert.NilError(t, err)
	assert.NilError(t, users.Add(root))
	reader, err := auth.NewUser("reader", "pw", auth.UserRoleReadOnly)
	assert.NilError(t, err)
	assert.NilError(t, users.Add(reader))

	ts := httptest.NewServer(conn.NewServer(db, users, config.ServerConfig{}).Handler())
	t.Cleanup(ts.Close)

	c, err := client.NewClient("ws"+strings.TrimPrefix(ts.URL, "http"), client.Options{
		Username: name,
		Password: "pw",
	})
	assert.NilError(t, err)
	assert.NilError(t, c.Connect())
	t.Cleanup(func() { c.Disconnect() })
	return c
}

func usersSchema() *jsondb.Schema {
	return jsondb.MustSchema("id",
		jsondb.Field{Name: "id", Type: types.FieldTypeInt},
		jsondb.Field{Name: "name", Type: types.FieldTypeString},
		jsondb.Field{Name: "score", Type: types.FieldTypeFloat},
	)
}

func TestNewClient(t *testing.T) {
	c, err := client.NewClient("ws://localhost:7085", client.Options{Username: "a", Password: "b c"})
	assert.NilError(t, err)
	assert.Equal(t, c.Url.Query().Get("username"), "a")
	assert.Equal(t, c.Url.Query().Get("password"), "b c")

	assert.Assert(t, errors.Is(c.Disconnect(), client.ErrNotConnected))
}

func TestConnectUnauthorized(t *testing.T) {
	db, err := jsondb.Open(jsondb.Options{})
	assert.NilError(t, err)
	ts := httptest.NewServer(conn.NewServer(db, auth.NewUsers(), config.ServerConfig{}).Handler())
	defer ts.Close()

	c, err := client.NewClient("ws"+strings.TrimPrefix(ts.URL, "http"), client.Options{Username: "x"})
	assert.NilError(t, err)
	assert.ErrorContains(t, c.Connect(), "401")
}

func TestClientTables(t *testing.T) {
	c := newTestClient(t, "root")

	assert.NilError(t, c.CreateTable("users", usersSchema(), "name"))
	tables, err := c.ListTables()
	assert.NilError(t, err)
	assert.DeepEqual(t, tables, []string{"users"})

	indexes, err := c.ListIndexes("users")
	assert.NilError(t, err)
	assert.DeepEqual(t, indexes, []string{"name"})

	err = c.CreateTable("users", usersSchema())
	var res_err *client.ResponseError
	assert.Assert(t, errors.As(err, &res_err))
	assert.Equal(t, res_err.Status, 409)

	assert.NilError(t, c.DropTable("users"))
	tables, err = c.ListTables()
	assert.NilError(t, err)
	assert.Equal(t, len(tables), 0)
}

func TestClientRecords(t *testing.T) {
	c := newTestClient(t, "root")
	assert.NilError(t, c.CreateTable("users", usersSchema()))

	id, err := c.Insert("users", map[string]any{"id": 1, "name": "A", "score": 1.0}, jsondb.ConflictFail)
	assert.NilError(t, err)
	assert.Equal(t, id, any(1))

	ids, err := c.InsertMany("users", []map[string]any{
		{"id": 2, "name": "B", "score": 2.5},
		{"id": 3, "name": "C", "score": 0.5},
	}, jsondb.ConflictFail)
	assert.NilError(t, err)
	assert.DeepEqual(t, ids, []any{2, 3})

	_, err = c.Insert("users", map[string]any{"id": 1, "name": "X", "score": 1.0}, jsondb.ConflictFail)
	var res_err *client.ResponseError
	assert.Assert(t, errors.As(err, &res_err))
	assert.Equal(t, res_err.Status, 409)

	rows, err := c.Select("users")
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 3)
	assert.Equal(t, rows[0]["score"], any(1.0))

	n, err := c.Update("users", map[string]any{"id": 3}, map[string]any{"name": "Z"})
	assert.NilError(t, err)
	assert.Equal(t, n, 1)

	limit := 1
	rows, err = c.Query(client.Query{
		Table:     "users",
		Where:     []client.Where{{Field: "score", Op: jsondb.OpGte, Value: 1.0}},
		Select:    []string{"name"},
		OrderBy:   "score",
		Direction: jsondb.Desc,
		Limit:     &limit,
	})
	assert.NilError(t, err)
	assert.DeepEqual(t, rows, []map[string]any{{"name": "B"}})

	assert.NilError(t, c.CreateIndex("users", "name"))
	rows, err = c.FindByIndex("users", "name", "Z")
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 1)
	assert.Equal(t, rows[0]["id"], any(3))
	assert.NilError(t, c.DropIndex("users", "name"))

	n, err = c.Delete("users", map[string]any{})
	assert.NilError(t, err)
	assert.Equal(t, n, 3)
}

func TestClientReadOnly(t *testing.T) {
	c := newTestClient(t, "reader")
	err := c.CreateTable("users", usersSchema())
	var res_err *client.ResponseError
	assert.Assert(t, errors.As(err, &res_err))
	assert.Equal(t, res_err.Status, 403)

	tables, err := c.ListTables()
	assert.NilError(t, err)
	assert.Equal(t, len(tables), 0)
}
