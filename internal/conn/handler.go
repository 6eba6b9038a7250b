package conn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tobsdb/jsondb"
	"github.com/tobsdb/jsondb/codec"
	"github.com/tobsdb/jsondb/types"
)

type Response struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	// don't manually set this. it comes from the client
	ReqId int `json:"__tdb_client_req_id__"`
}

func NewErrorResponse(status int, err string) Response {
	return Response{Message: err, Status: status}
}

func NewResponse(status int, message string, data any) Response {
	return Response{Data: data, Message: message, Status: status}
}

func errorResponse(err error) Response {
	return NewErrorResponse(jsondb.StatusOf(err), err.Error())
}

// Marshal encodes r with data written by the record codec, so floats stay
// floats on the other side.
func (r Response) Marshal() []byte {
	data := json.RawMessage("null")
	if r.Data != nil {
		v, err := types.Normalize(r.Data)
		if err == nil {
			data, err = codec.MarshalValue(v)
		}
		if err != nil {
			res := NewErrorResponse(http.StatusInternalServerError, "failed to encode response: "+err.Error())
			res.ReqId = r.ReqId
			return res.Marshal()
		}
	}

	buf, _ := json.Marshal(struct {
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
		Status  int             `json:"status"`
		ReqId   int             `json:"__tdb_client_req_id__"`
	}{data, r.Message, r.Status, r.ReqId})
	return buf
}

// decodeRequest reads raw into req keeping integers and floats apart.
// Values held by `any` fields are converted to canonical values by the
// caller through canonical.
func decodeRequest(raw []byte, req any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(req)
}

func canonical(m map[string]any) (map[string]any, error) {
	if m == nil {
		return map[string]any{}, nil
	}
	v, err := codec.FromJSON(m)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func recordList(rows []jsondb.Record) []any {
	res := make([]any, len(rows))
	for i, r := range rows {
		res[i] = map[string]any(r)
	}
	return res
}

func badRequest(err error) Response {
	return NewErrorResponse(http.StatusBadRequest, err.Error())
}

type TableSchema struct {
	PrimaryKey string         `json:"primary_key"`
	Fields     []jsondb.Field `json:"fields"`
	Indexes    []string       `json:"indexes,omitempty"`
}

type CreateTableRequest struct {
	Table  string      `json:"table"`
	Schema TableSchema `json:"schema"`
}

func CreateTableReqHandler(db *jsondb.JsonDatabase, raw []byte) Response {
	var req CreateTableRequest
	if err := decodeRequest(raw, &req); err != nil {
		return badRequest(err)
	}

	schema, err := jsondb.NewSchema(req.Schema.PrimaryKey, req.Schema.Fields...)
	if err != nil {
		return badRequest(err)
	}
	err = db.Transaction(func() error {
		if err := db.CreateTable(req.Table, schema); err != nil {
			return err
		}
		for _, field := range req.Schema.Indexes {
			if err := db.CreateIndex(req.Table, field); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusCreated, fmt.Sprintf("Created table %s", req.Table), nil)
}

type TableRequest struct {
	Table string `json:"table"`
}

func DropTableReqHandler(db *jsondb.JsonDatabase, raw []byte) Response {
	var req TableRequest
	if err := decodeRequest(raw, &req); err != nil {
		return badRequest(err)
	}
	if err := db.DropTable(req.Table); err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Dropped table %s", req.Table), nil)
}

func ListTablesReqHandler(db *jsondb.JsonDatabase) Response {
	tables := db.Tables()
	return NewResponse(http.StatusOK, fmt.Sprintf("Found %d tables", len(tables)), tables)
}

type InsertRequest struct {
	Table  string         `json:"table"`
	Data   map[string]any `json:"data"`
	Policy string         `json:"policy"`
}

func InsertReqHandler(db *jsondb.JsonDatabase, raw []byte) Response {
	var req InsertRequest
	if err := decodeRequest(raw, &req); err != nil {
		return badRequest(err)
	}
	policy, err := jsondb.ParseConflictPolicy(req.Policy)
	if err != nil {
		return badRequest(err)
	}
	data, err := canonical(req.Data)
	if err != nil {
		return badRequest(err)
	}

	id, err := db.Insert(req.Table, data, policy)
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusCreated, fmt.Sprintf("Inserted row in table %s", req.Table), id)
}

type InsertManyRequest struct {
	Table  string           `json:"table"`
	Data   []map[string]any `json:"data"`
	Policy string           `json:"policy"`
}

func InsertManyReqHandler(db *jsondb.JsonDatabase, raw []byte) Response {
	var req InsertManyRequest
	if err := decodeRequest(raw, &req); err != nil {
		return badRequest(err)
	}
	policy, err := jsondb.ParseConflictPolicy(req.Policy)
	if err != nil {
		return badRequest(err)
	}
	records := make([]jsondb.Record, len(req.Data))
	for i, d := range req.Data {
		data, err := canonical(d)
		if err != nil {
			return badRequest(fmt.Errorf("record %d: %w", i, err))
		}
		records[i] = data
	}

	ids, err := db.InsertMany(req.Table, records, policy)
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusCreated,
		fmt.Sprintf("Inserted %d rows in table %s", len(ids), req.Table), ids)
}

func SelectReqHandler(db *jsondb.JsonDatabase, raw []byte) Response {
	var req TableRequest
	if err := decodeRequest(raw, &req); err != nil {
		return badRequest(err)
	}
	rows, err := db.Select(req.Table)
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK,
		fmt.Sprintf("Found %d rows in table %s", len(rows), req.Table), recordList(rows))
}

type WhereClause struct {
	Field string          `json:"field"`
	Op    jsondb.Operator `json:"op"`
	Value any             `json:"value"`
}

type JoinClause struct {
	Table      string `json:"table"`
	BaseField  string `json:"base_field"`
	OtherField string `json:"other_field"`
}

type OrderClause struct {
	Field     string           `json:"field"`
	Direction jsondb.Direction `json:"direction"`
}

type QueryRequest struct {
	Table   string        `json:"table"`
	Where   []WhereClause `json:"where,omitempty"`
	Join    *JoinClause   `json:"join,omitempty"`
	Select  []string      `json:"select,omitempty"`
	OrderBy *OrderClause  `json:"order_by,omitempty"`
	Limit   *int          `json:"limit,omitempty"`
	Offset  int           `json:"offset,omitempty"`
}

// Build turns req into a query on db.
func (req *QueryRequest) Build(db *jsondb.JsonDatabase) (*jsondb.Query, error) {
	q := db.Query(req.Table)
	for _, w := range req.Where {
		v, err := codec.FromJSON(w.Value)
		if err != nil {
			return nil, fmt.Errorf("where %s: %w", w.Field, err)
		}
		q = q.Where(w.Field, w.Op, v)
	}
	if req.Join != nil {
		q = q.Join(req.Join.Table, req.Join.BaseField, req.Join.OtherField)
	}
	if len(req.Select) > 0 {
		q = q.Select(req.Select...)
	}
	if req.OrderBy != nil {
		dir := req.OrderBy.Direction
		if dir == "" {
			dir = jsondb.Asc
		}
		q = q.OrderBy(req.OrderBy.Field, dir)
	}
	if req.Limit != nil {
		q = q.Limit(*req.Limit)
	}
	if req.Offset != 0 {
		q = q.Offset(req.Offset)
	}
	return q, nil
}

func QueryReqHandler(db *jsondb.JsonDatabase, raw []byte) Response {
	var req struct {
		Query QueryRequest `json:"query"`
	}
	if err := decodeRequest(raw, &req); err != nil {
		return badRequest(err)
	}
	q, err := req.Query.Build(db)
	if err != nil {
		return badRequest(err)
	}
	rows, err := q.All()
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK,
		fmt.Sprintf("Found %d rows in table %s", len(rows), req.Query.Table), recordList(rows))
}

type UpdateRequest struct {
	Table string         `json:"table"`
	Where map[string]any `json:"where"`
	Data  map[string]any `json:"data"`
}

func UpdateReqHandler(db *jsondb.JsonDatabase, raw []byte) Response {
	var req UpdateRequest
	if err := decodeRequest(raw, &req); err != nil {
		return badRequest(err)
	}
	where, err := canonical(req.Where)
	if err != nil {
		return badRequest(err)
	}
	data, err := canonical(req.Data)
	if err != nil {
		return badRequest(err)
	}

	n, err := db.Update(req.Table, where, data)
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Updated %d rows in table %s", n, req.Table), n)
}

type DeleteRequest struct {
	Table string         `json:"table"`
	Where map[string]any `json:"where"`
}

func DeleteReqHandler(db *jsondb.JsonDatabase, raw []byte) Response {
	var req DeleteRequest
	if err := decodeRequest(raw, &req); err != nil {
		return badRequest(err)
	}
	where, err := canonical(req.Where)
	if err != nil {
		return badRequest(err)
	}

	n, err := db.Delete(req.Table, where)
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Deleted %d rows in table %s", n, req.Table), n)
}

type IndexRequest struct {
	Table string `json:"table"`
	Field string `json:"field"`
	Value any    `json:"value,omitempty"`
}

func CreateIndexReqHandler(db *jsondb.JsonDatabase, raw []byte) Response {
	var req IndexRequest
	if err := decodeRequest(raw, &req); err != nil {
		return badRequest(err)
	}
	if err := db.CreateIndex(req.Table, req.Field); err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusCreated, fmt.Sprintf("Created index on %s.%s", req.Table, req.Field), nil)
}

func DropIndexReqHandler(db *jsondb.JsonDatabase, raw []byte) Response {
	var req IndexRequest
	if err := decodeRequest(raw, &req); err != nil {
		return badRequest(err)
	}
	if err := db.DropIndex(req.Table, req.Field); err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Dropped index on %s.%s", req.Table, req.Field), nil)
}

func ListIndexesReqHandler(db *jsondb.JsonDatabase, raw []byte) Response {
	var req TableRequest
	if err := decodeRequest(raw, &req); err != nil {
		return badRequest(err)
	}
	indexes, err := db.ListIndexes(req.Table)
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK,
		fmt.Sprintf("Found %d indexes in table %s", len(indexes), req.Table), indexes)
}

func FindByIndexReqHandler(db *jsondb.JsonDatabase, raw []byte) Response {
	var req IndexRequest
	if err := decodeRequest(raw, &req); err != nil {
		return badRequest(err)
	}
	value, err := codec.FromJSON(req.Value)
	if err != nil {
		return badRequest(err)
	}
	rows, err := db.FindByIndex(req.Table, req.Field, value)
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK,
		fmt.Sprintf("Found %d rows in table %s", len(rows), req.Table), recordList(rows))
}
