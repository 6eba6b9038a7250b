// Package client talks to a jsondb server over websockets.
//
//	db, err := client.NewClient("ws://localhost:7085", client.Options{
//		Username: "root",
//		Password: "secret",
//	})
//	if err != nil {
//		return err
//	}
//	defer db.Disconnect()
//
//	rows, err := db.Query(client.Query{
//		Table: "users",
//		Where: []client.Where{{Field: "age", Op: jsondb.OpGt, Value: 21}},
//	})
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	ws "github.com/gorilla/websocket"
	"github.com/tobsdb/jsondb"
	"github.com/tobsdb/jsondb/codec"
	"github.com/tobsdb/jsondb/internal/conn"
	"github.com/tobsdb/jsondb/pkg"
	"github.com/tobsdb/jsondb/types"
)

var ErrNotConnected = errors.New("not connected")

type Options struct {
	Username string
	Password string
}

type Client struct {
	// The formatted connection url of the server
	Url *url.URL

	mu      sync.Mutex
	conn    *ws.Conn
	options Options
	req_id  int
}

func NewClient(urlStr string, options Options) (*Client, error) {
	Url, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	q := Url.Query()
	q.Set("username", options.Username)
	q.Set("password", options.Password)
	Url.RawQuery = q.Encode()

	return &Client{Url: Url, options: options}, nil
}

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect()
}

func (c *Client) connect() error {
	if c.conn != nil {
		return nil
	}
	ws_conn, res, err := ws.DefaultDialer.Dial(c.Url.String(), nil)
	if err != nil {
		if res != nil {
			return fmt.Errorf("failed to connect: %s: %w", res.Status, err)
		}
		return fmt.Errorf("failed to connect: %w", err)
	}
	pkg.DebugLog("connected to server", "url", c.Url.Host)
	c.conn = ws_conn
	return nil
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	err := c.conn.WriteMessage(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, "Disconnect"))
	close_err := c.conn.Close()
	c.conn = nil
	if err := errors.Join(err, close_err); err != nil {
		return err
	}
	pkg.DebugLog("disconnected from server", "url", c.Url.Host)
	return nil
}

type Response struct {
	Status  int
	Message string
	Data    any
	ReqId   int
}

// ResponseError is returned for every response with a failing status.
type ResponseError struct {
	Status  int
	Message string
}

func (e *ResponseError) Error() string { return fmt.Sprintf("%d: %s", e.Status, e.Message) }

func decodeResponse(message []byte) (Response, error) {
	var raw struct {
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
		Status  int             `json:"status"`
		ReqId   int             `json:"__tdb_client_req_id__"`
	}
	if err := json.Unmarshal(message, &raw); err != nil {
		return Response{}, fmt.Errorf("failed to decode response: %w", err)
	}
	res := Response{Status: raw.Status, Message: raw.Message, ReqId: raw.ReqId}
	if len(raw.Data) > 0 && string(raw.Data) != "null" {
		data, err := codec.UnmarshalValue(raw.Data)
		if err != nil {
			return res, err
		}
		res.Data = data
	}
	return res, nil
}

// Do sends one request and waits for its response. Payload values are
// encoded like records so that floats and integers stay apart.
func (c *Client) Do(action conn.RequestAction, payload map[string]any) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(); err != nil {
		return Response{}, err
	}

	c.req_id++
	req := map[string]any{"action": string(action), "__tdb_client_req_id__": c.req_id}
	for k, v := range payload {
		if v != nil {
			req[k] = v
		}
	}
	v, err := types.Normalize(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode request: %w", err)
	}
	buf, err := codec.MarshalValue(v)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode request: %w", err)
	}
	if err := c.conn.WriteMessage(ws.TextMessage, buf); err != nil {
		return Response{}, err
	}

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return Response{}, err
		}
		res, err := decodeResponse(message)
		if err != nil {
			return res, err
		}
		if res.ReqId != c.req_id {
			pkg.WarnLog("dropping stale response", "req_id", res.ReqId)
			continue
		}
		if res.Status >= 400 {
			return res, &ResponseError{res.Status, res.Message}
		}
		return res, nil
	}
}

func toRecords(data any) []map[string]any {
	list, _ := data.([]any)
	res := make([]map[string]any, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			res = append(res, m)
		}
	}
	return res
}

func toStrings(data any) []string {
	list, _ := data.([]any)
	res := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			res = append(res, s)
		}
	}
	return res
}

func (c *Client) CreateTable(name string, schema *jsondb.Schema, indexes ...string) error {
	fields := []any{}
	for _, f := range schema.Fields() {
		fields = append(fields, map[string]any{"name": f.Name, "type": string(f.Type)})
	}
	_, err := c.Do(conn.RequestActionCreateTable, map[string]any{
		"table": name,
		"schema": map[string]any{
			"primary_key": schema.PrimaryKey(),
			"fields":      fields,
			"indexes":     indexes,
		},
	})
	return err
}

func (c *Client) DropTable(name string) error {
	_, err := c.Do(conn.RequestActionDropTable, map[string]any{"table": name})
	return err
}

func (c *Client) ListTables() ([]string, error) {
	res, err := c.Do(conn.RequestActionListTables, nil)
	if err != nil {
		return nil, err
	}
	return toStrings(res.Data), nil
}

// Insert returns the identity of the stored record.
func (c *Client) Insert(table string, record map[string]any, policy jsondb.ConflictPolicy) (any, error) {
	res, err := c.Do(conn.RequestActionInsert, map[string]any{
		"table": table, "data": record, "policy": string(policy),
	})
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (c *Client) InsertMany(table string, records []map[string]any, policy jsondb.ConflictPolicy) ([]any, error) {
	res, err := c.Do(conn.RequestActionInsertMany, map[string]any{
		"table": table, "data": records, "policy": string(policy),
	})
	if err != nil {
		return nil, err
	}
	ids, _ := res.Data.([]any)
	return ids, nil
}

func (c *Client) Select(table string) ([]map[string]any, error) {
	res, err := c.Do(conn.RequestActionSelect, map[string]any{"table": table})
	if err != nil {
		return nil, err
	}
	return toRecords(res.Data), nil
}

type Where struct {
	Field string
	Op    jsondb.Operator
	Value any
}

type Join struct {
	Table      string
	BaseField  string
	OtherField string
}

// Query mirrors the server's query builder. A nil Limit means no limit.
type Query struct {
	Table     string
	Where     []Where
	Join      *Join
	Select    []string
	OrderBy   string
	Direction jsondb.Direction
	Limit     *int
	Offset    int
}

func (q Query) payload() map[string]any {
	p := map[string]any{"table": q.Table}
	if len(q.Where) > 0 {
		where := make([]any, len(q.Where))
		for i, w := range q.Where {
			where[i] = map[string]any{"field": w.Field, "op": string(w.Op), "value": w.Value}
		}
		p["where"] = where
	}
	if q.Join != nil {
		p["join"] = map[string]any{
			"table": q.Join.Table, "base_field": q.Join.BaseField, "other_field": q.Join.OtherField,
		}
	}
	if len(q.Select) > 0 {
		p["select"] = q.Select
	}
	if q.OrderBy != "" {
		p["order_by"] = map[string]any{"field": q.OrderBy, "direction": string(q.Direction)}
	}
	if q.Limit != nil {
		p["limit"] = *q.Limit
	}
	if q.Offset != 0 {
		p["offset"] = q.Offset
	}
	return p
}

func (c *Client) Query(q Query) ([]map[string]any, error) {
	res, err := c.Do(conn.RequestActionQuery, map[string]any{"query": q.payload()})
	if err != nil {
		return nil, err
	}
	return toRecords(res.Data), nil
}

func (c *Client) Update(table string, where, data map[string]any) (int, error) {
	res, err := c.Do(conn.RequestActionUpdate, map[string]any{
		"table": table, "where": where, "data": data,
	})
	if err != nil {
		return 0, err
	}
	n, _ := res.Data.(int)
	return n, nil
}

func (c *Client) Delete(table string, where map[string]any) (int, error) {
	res, err := c.Do(conn.RequestActionDelete, map[string]any{"table": table, "where": where})
	if err != nil {
		return 0, err
	}
	n, _ := res.Data.(int)
	return n, nil
}

func (c *Client) CreateIndex(table, field string) error {
	_, err := c.Do(conn.RequestActionCreateIndex, map[string]any{"table": table, "field": field})
	return err
}

func (c *Client) DropIndex(table, field string) error {
	_, err := c.Do(conn.RequestActionDropIndex, map[string]any{"table": table, "field": field})
	return err
}

func (c *Client) ListIndexes(table string) ([]string, error) {
	res, err := c.Do(conn.RequestActionListIndexes, map[string]any{"table": table})
	if err != nil {
		return nil, err
	}
	return toStrings(res.Data), nil
}

func (c *Client) FindByIndex(table, field string, value any) ([]map[string]any, error) {
	res, err := c.Do(conn.RequestActionFindByIndex, map[string]any{
		"table": table, "field": field, "value": value,
	})
	if err != nil {
		return nil, err
	}
	return toRecords(res.Data), nil
}
