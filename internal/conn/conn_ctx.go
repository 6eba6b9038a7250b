package conn

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tobsdb/jsondb/internal/auth"
	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// how long a write to a slow client may block
const write_wait = 10 * time.Second

type ConnCtx struct {
	conn    *websocket.Conn
	limiter *rate.Limiter

	User *auth.User
}

// NewConnCtx wraps an upgraded connection. A nil limiter disables rate
// limiting.
func NewConnCtx(conn *websocket.Conn, user *auth.User, limiter *rate.Limiter) *ConnCtx {
	return &ConnCtx{conn, limiter, user}
}

func (ctx *ConnCtx) Read() ([]byte, error) {
	_, message, err := ctx.conn.ReadMessage()
	return message, err
}

// Allow reports whether the next request fits in the connection's budget.
func (ctx *ConnCtx) Allow() bool {
	return ctx.limiter == nil || ctx.limiter.Allow()
}

func (ctx *ConnCtx) WriteResponse(r Response) error {
	ctx.conn.SetWriteDeadline(time.Now().Add(write_wait))
	return ctx.conn.WriteMessage(websocket.TextMessage, r.Marshal())
}

func (ctx *ConnCtx) Close(reason string) error {
	ctx.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second))
	return ctx.conn.Close()
}
