package conn

import (
	"fmt"
	"net/http"

	"github.com/tobsdb/jsondb"
	"github.com/tobsdb/jsondb/internal/auth"
	"github.com/tobsdb/jsondb/pkg"
)

type RequestAction string

const (
	// table actions
	RequestActionCreateTable RequestAction = "createTable"
	RequestActionDropTable   RequestAction = "dropTable"
	RequestActionListTables  RequestAction = "listTables"

	// row actions
	RequestActionInsert     RequestAction = "insert"
	RequestActionInsertMany RequestAction = "insertMany"
	RequestActionSelect     RequestAction = "select"
	RequestActionQuery      RequestAction = "query"
	RequestActionUpdate     RequestAction = "update"
	RequestActionDelete     RequestAction = "delete"

	// index actions
	RequestActionCreateIndex RequestAction = "createIndex"
	RequestActionDropIndex   RequestAction = "dropIndex"
	RequestActionListIndexes RequestAction = "listIndexes"
	RequestActionFindByIndex RequestAction = "findByIndex"
)

func (action RequestAction) IsReadOnly() bool {
	switch action {
	case RequestActionListTables, RequestActionSelect, RequestActionQuery,
		RequestActionListIndexes, RequestActionFindByIndex:
		return true
	}
	return false
}

// IsTableAction reports whether action changes the table registry or the
// index set. Those need an admin.
func (action RequestAction) IsTableAction() bool {
	switch action {
	case RequestActionCreateTable, RequestActionDropTable,
		RequestActionCreateIndex, RequestActionDropIndex:
		return true
	}
	return false
}

func (action RequestAction) Role() auth.UserRole {
	if action.IsTableAction() {
		return auth.UserRoleAdmin
	}
	if action.IsReadOnly() {
		return auth.UserRoleReadOnly
	}
	return auth.UserRoleReadWrite
}

// ActionHandler checks user's clearance and runs action against db under the
// database lock: shared for read-only actions, exclusive otherwise.
func ActionHandler(db *jsondb.JsonDatabase, user *auth.User, action RequestAction, raw []byte) (res Response) {
	if user == nil || !user.HasClearance(action.Role()) {
		return NewErrorResponse(http.StatusForbidden, auth.InsufficientPermissions.Error())
	}

	if action.IsReadOnly() {
		pkg.RLockWrap(db, func() { res = handle(db, action, raw) })
	} else {
		pkg.LockWrap(db, func() { res = handle(db, action, raw) })
	}
	return res
}

func handle(db *jsondb.JsonDatabase, action RequestAction, raw []byte) Response {
	switch action {
	case RequestActionCreateTable:
		return CreateTableReqHandler(db, raw)
	case RequestActionDropTable:
		return DropTableReqHandler(db, raw)
	case RequestActionListTables:
		return ListTablesReqHandler(db)
	case RequestActionInsert:
		return InsertReqHandler(db, raw)
	case RequestActionInsertMany:
		return InsertManyReqHandler(db, raw)
	case RequestActionSelect:
		return SelectReqHandler(db, raw)
	case RequestActionQuery:
		return QueryReqHandler(db, raw)
	case RequestActionUpdate:
		return UpdateReqHandler(db, raw)
	case RequestActionDelete:
		return DeleteReqHandler(db, raw)
	case RequestActionCreateIndex:
		return CreateIndexReqHandler(db, raw)
	case RequestActionDropIndex:
		return DropIndexReqHandler(db, raw)
	case RequestActionListIndexes:
		return ListIndexesReqHandler(db, raw)
	case RequestActionFindByIndex:
		return FindByIndexReqHandler(db, raw)
	default:
		return NewErrorResponse(http.StatusBadRequest, fmt.Sprintf("unknown action: %s", action))
	}
}
