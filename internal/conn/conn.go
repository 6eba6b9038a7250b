package conn

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/tobsdb/jsondb/internal/auth"
	"github.com/tobsdb/jsondb/pkg"
)

type WsRequest struct {
	Action RequestAction `json:"action"`
	ReqId  int           `json:"__tdb_client_req_id__"` // used in tdb clients
}

var Upgrader = websocket.Upgrader{
	WriteBufferSize: 1024 * 10,
	ReadBufferSize:  1024 * 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ConnCredentials reads the username and password from the query string,
// falling back to the Authorization header as basic auth or "user:pass".
func ConnCredentials(r *http.Request) (string, string) {
	url_query := r.URL.Query()
	if url_query.Has("username") || url_query.Has("password") {
		return url_query.Get("username"), url_query.Get("password")
	}
	if user, pass, ok := r.BasicAuth(); ok {
		return user, pass
	}
	user, pass, _ := strings.Cut(r.Header.Get("Authorization"), ":")
	return user, pass
}

func ConnValidate(users *auth.Users, r *http.Request) (*auth.User, error) {
	name, password := ConnCredentials(r)
	if name == "" {
		return nil, auth.InvalidCredentials
	}
	return users.Authenticate(name, password)
}

func HttpError(w http.ResponseWriter, status int, err string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(NewErrorResponse(status, err))
}

func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	user, err := ConnValidate(s.users, r)
	if err != nil {
		pkg.InfoLog("connection unauthorized", "remote", r.RemoteAddr)
		HttpError(w, http.StatusUnauthorized, "connection unauthorized")
		return
	}

	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		pkg.ErrorLog("upgrade failed", "err", err)
		return
	}
	ctx := NewConnCtx(conn, user, s.newLimiter())
	pkg.InfoLog("new connection established", "remote", r.RemoteAddr, "user", user.Name)
	defer ctx.Close("bye")

	for {
		message, err := ctx.Read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				pkg.ErrorLog("unexpected close", "err", err)
			} else {
				pkg.DebugLog("connection closed", "err", err)
			}
			return
		}

		var req WsRequest
		if err := json.Unmarshal(message, &req); err != nil {
			if err := ctx.WriteResponse(NewErrorResponse(http.StatusBadRequest, err.Error())); err != nil {
				return
			}
			continue
		}

		var res Response
		if ctx.Allow() {
			res = ActionHandler(s.db, ctx.User, req.Action, message)
		} else {
			res = NewErrorResponse(http.StatusTooManyRequests, ErrRateLimited.Error())
		}
		res.ReqId = req.ReqId

		if err := ctx.WriteResponse(res); err != nil {
			pkg.ErrorLog("writing response", "err", err)
			return
		}
	}
}
