package conn_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/tobsdb/jsondb"
	"github.com/tobsdb/jsondb/internal/auth"
	. "github.com/tobsdb/jsondb/internal/conn"
	"gotest.tools/assert"
)

func reqEncode(req map[string]any) []byte {
	v, _ := json.Marshal(req)
	return v
}

func newTestDB(t *testing.T) *jsondb.JsonDatabase {
	db, err := jsondb.Open(jsondb.Options{})
	assert.NilError(t, err)
	res := CreateTableReqHandler(db, reqEncode(map[string]any{
		"table": "a",
		"schema": map[string]any{
			"primary_key": "id",
			"fields": []map[string]any{
				{"name": "id", "type": "Int"},
				{"name": "b", "type": "Int"},
				{"name": "score", "type": "Float"},
			},
			"indexes": []string{"b"},
		},
	}))
	assert.Equal(t, res.Status, http.StatusCreated, res.Message)
	return db
}

func newPopulatedTestDB(t *testing.T, n int) *jsondb.JsonDatabase {
	db := newTestDB(t)
	for i := 1; i <= n; i++ {
		res := InsertReqHandler(db, reqEncode(map[string]any{
			"table": "a",
			"data":  map[string]any{"id": i, "b": i % 3, "score": float64(i) + 0.5},
		}))
		assert.Equal(t, res.Status, http.StatusCreated, res.Message)
	}
	return db
}

func TestCreateTableReqHandler(t *testing.T) {
	db := newTestDB(t)
	assert.DeepEqual(t, ListTablesReqHandler(db).Data, []string{"a"})

	t.Run("already exists", func(t *testing.T) {
		res := CreateTableReqHandler(db, reqEncode(map[string]any{
			"table":  "a",
			"schema": map[string]any{"fields": []map[string]any{{"name": "x", "type": "Int"}}},
		}))
		assert.Equal(t, res.Status, http.StatusConflict, res.Message)
	})

	t.Run("invalid schema", func(t *testing.T) {
		res := CreateTableReqHandler(db, reqEncode(map[string]any{
			"table":  "c",
			"schema": map[string]any{"fields": []map[string]any{{"name": "x", "type": "Date"}}},
		}))
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
	})

	t.Run("bad index rolls back the table", func(t *testing.T) {
		res := CreateTableReqHandler(db, reqEncode(map[string]any{
			"table": "c",
			"schema": map[string]any{
				"fields":  []map[string]any{{"name": "x", "type": "Int"}},
				"indexes": []string{"y"},
			},
		}))
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
		assert.DeepEqual(t, db.Tables(), []string{"a"})
	})
}

func TestInsertReqHandler(t *testing.T) {
	t.Run("table not found", func(t *testing.T) {
		db := newTestDB(t)
		res := InsertReqHandler(db, reqEncode(map[string]any{"table": "b", "data": map[string]any{"a": 1}}))
		assert.Equal(t, res.Status, http.StatusNotFound, res.Message)
		assert.Equal(t, res.Message, "table b not found")
	})

	t.Run("json numbers keep their kind", func(t *testing.T) {
		db := newTestDB(t)
		res := InsertReqHandler(db, []byte(`{"table":"a","data":{"id":1,"b":2,"score":3.0}}`))
		assert.Equal(t, res.Status, http.StatusCreated, res.Message)
		assert.Equal(t, res.Data, any(1))

		res = InsertReqHandler(db, []byte(`{"table":"a","data":{"id":2,"b":2.5,"score":3.0}}`))
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
	})

	t.Run("duplicate error", func(t *testing.T) {
		db := newPopulatedTestDB(t, 1)
		raw := reqEncode(map[string]any{"table": "a", "data": map[string]any{"id": 1, "b": 1, "score": 1.5}})
		res := InsertReqHandler(db, raw)
		assert.Equal(t, res.Status, http.StatusConflict, res.Message)
		assert.ErrorContains(t, errors.New(res.Message), "duplicate primary key")
	})

	t.Run("ignore policy", func(t *testing.T) {
		db := newPopulatedTestDB(t, 1)
		raw := reqEncode(map[string]any{"table": "a", "policy": "ignore", "data": map[string]any{"id": 1, "b": 9, "score": 1.5}})
		res := InsertReqHandler(db, raw)
		assert.Equal(t, res.Status, http.StatusCreated, res.Message)
	})

	t.Run("bad policy", func(t *testing.T) {
		db := newTestDB(t)
		res := InsertReqHandler(db, reqEncode(map[string]any{"table": "a", "policy": "merge"}))
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
	})
}

func TestInsertManyReqHandler(t *testing.T) {
	db := newPopulatedTestDB(t, 1)
	res := InsertManyReqHandler(db, reqEncode(map[string]any{
		"table": "a",
		"data": []map[string]any{
			{"id": 2, "b": 1, "score": 1.5},
			{"id": 1, "b": 1, "score": 1.5},
		},
	}))
	assert.Equal(t, res.Status, http.StatusConflict, res.Message)
	rows, _ := db.Select("a")
	assert.Equal(t, len(rows), 1)

	res = InsertManyReqHandler(db, reqEncode(map[string]any{
		"table": "a",
		"data": []map[string]any{
			{"id": 2, "b": 1, "score": 1.5},
			{"id": 3, "b": 1, "score": 1.5},
		},
	}))
	assert.Equal(t, res.Status, http.StatusCreated, res.Message)
	assert.DeepEqual(t, res.Data, []any{2, 3})
}

func TestQueryReqHandler(t *testing.T) {
	db := newPopulatedTestDB(t, 10)

	t.Run("filter order paginate project", func(t *testing.T) {
		res := QueryReqHandler(db, reqEncode(map[string]any{
			"query": map[string]any{
				"table":    "a",
				"where":    []map[string]any{{"field": "b", "op": "=", "value": 1}},
				"order_by": map[string]any{"field": "id", "direction": "desc"},
				"limit":    2,
				"offset":   1,
				"select":   []string{"id"},
			},
		}))
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
		assert.DeepEqual(t, res.Data, []any{map[string]any{"id": 7}, map[string]any{"id": 4}})
	})

	t.Run("float literal", func(t *testing.T) {
		res := QueryReqHandler(db, []byte(`{"query":{"table":"a","where":[{"field":"score","op":">=","value":9.5}]}}`))
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
		assert.Equal(t, len(res.Data.([]any)), 2)
	})

	t.Run("invalid operator", func(t *testing.T) {
		res := QueryReqHandler(db, []byte(`{"query":{"table":"a","where":[{"field":"b","op":"~","value":1}]}}`))
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
	})

	t.Run("join", func(t *testing.T) {
		assert.NilError(t, db.CreateTable("tags", jsondb.MustSchema("",
			jsondb.Field{Name: "a_id", Type: "Int"},
			jsondb.Field{Name: "tag", Type: "String"},
		)))
		_, err := db.Insert("tags", jsondb.Record{"a_id": 2, "tag": "x"}, jsondb.ConflictFail)
		assert.NilError(t, err)

		res := QueryReqHandler(db, reqEncode(map[string]any{
			"query": map[string]any{
				"table":  "a",
				"join":   map[string]any{"table": "tags", "base_field": "id", "other_field": "a_id"},
				"select": []string{"id", "tags.tag"},
			},
		}))
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
		assert.DeepEqual(t, res.Data, []any{map[string]any{"id": 2, "tags.tag": "x"}})
	})
}

func TestUpdateReqHandler(t *testing.T) {
	db := newPopulatedTestDB(t, 10)

	t.Run("simple update", func(t *testing.T) {
		res := UpdateReqHandler(db, reqEncode(map[string]any{
			"table": "a", "where": map[string]any{"b": 0}, "data": map[string]any{"b": 5},
		}))
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
		assert.Equal(t, res.Data, any(3))

		found := FindByIndexReqHandler(db, reqEncode(map[string]any{"table": "a", "field": "b", "value": 5}))
		assert.Equal(t, found.Status, http.StatusOK, found.Message)
		assert.Equal(t, len(found.Data.([]any)), 3)
	})

	t.Run("duplicate update", func(t *testing.T) {
		res := UpdateReqHandler(db, reqEncode(map[string]any{
			"table": "a", "where": map[string]any{"id": 6}, "data": map[string]any{"id": 7},
		}))
		assert.Equal(t, res.Status, http.StatusConflict, res.Message)
	})

	t.Run("mistyped update", func(t *testing.T) {
		res := UpdateReqHandler(db, reqEncode(map[string]any{
			"table": "a", "where": map[string]any{"id": 6}, "data": map[string]any{"b": "x"},
		}))
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
	})
}

func TestDeleteReqHandler(t *testing.T) {
	db := newPopulatedTestDB(t, 10)

	res := DeleteReqHandler(db, reqEncode(map[string]any{"table": "a", "where": map[string]any{"id": 5}}))
	assert.Equal(t, res.Status, http.StatusOK, res.Message)
	assert.Equal(t, res.Data, any(1))

	res = DeleteReqHandler(db, reqEncode(map[string]any{"table": "a", "where": map[string]any{"id": 100}}))
	assert.Equal(t, res.Status, http.StatusOK, res.Message)
	assert.Equal(t, res.Data, any(0))
}

func TestIndexReqHandlers(t *testing.T) {
	db := newPopulatedTestDB(t, 3)

	res := CreateIndexReqHandler(db, reqEncode(map[string]any{"table": "a", "field": "score"}))
	assert.Equal(t, res.Status, http.StatusCreated, res.Message)
	res = CreateIndexReqHandler(db, reqEncode(map[string]any{"table": "a", "field": "score"}))
	assert.Equal(t, res.Status, http.StatusConflict, res.Message)

	res = ListIndexesReqHandler(db, reqEncode(map[string]any{"table": "a"}))
	assert.DeepEqual(t, res.Data, []string{"b", "score"})

	res = DropIndexReqHandler(db, reqEncode(map[string]any{"table": "a", "field": "b"}))
	assert.Equal(t, res.Status, http.StatusOK, res.Message)
	res = FindByIndexReqHandler(db, reqEncode(map[string]any{"table": "a", "field": "b", "value": 1}))
	assert.Equal(t, res.Status, http.StatusNotFound, res.Message)
}

func TestActionHandler(t *testing.T) {
	db := newPopulatedTestDB(t, 1)
	reader, err := auth.NewUser("reader", "pw", auth.UserRoleReadOnly)
	assert.NilError(t, err)
	writer, err := auth.NewUser("writer", "pw", auth.UserRoleReadWrite)
	assert.NilError(t, err)

	raw := reqEncode(map[string]any{"table": "a"})
	res := ActionHandler(db, reader, RequestActionSelect, raw)
	assert.Equal(t, res.Status, http.StatusOK, res.Message)

	res = ActionHandler(db, reader, RequestActionDelete, raw)
	assert.Equal(t, res.Status, http.StatusForbidden, res.Message)

	res = ActionHandler(db, writer, RequestActionDropTable, raw)
	assert.Equal(t, res.Status, http.StatusForbidden, res.Message)

	res = ActionHandler(db, writer, RequestAction("truncate"), raw)
	assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
	assert.Equal(t, res.Message, "unknown action: truncate")
}

func TestResponseMarshal(t *testing.T) {
	res := NewResponse(http.StatusOK, "ok", []any{map[string]any{"f": 1.0, "i": 1}})
	res.ReqId = 7
	var decoded map[string]any
	assert.NilError(t, json.Unmarshal(res.Marshal(), &decoded))
	assert.Equal(t, decoded["__tdb_client_req_id__"], 7.0)
	assert.Equal(t, string(res.Marshal()),
		`{"data":[{"f":1.0,"i":1}],"message":"ok","status":200,"__tdb_client_req_id__":7}`)

	empty := NewErrorResponse(http.StatusNotFound, "gone")
	assert.Equal(t, string(empty.Marshal()), `{"data":null,"message":"gone","status":404,"__tdb_client_req_id__":0}`)
}
