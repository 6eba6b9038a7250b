// Package jsondb is an embedded, file-backed record store.
//
// A database is a registry of named tables. Every table enforces a schema,
// keeps its records in insertion order and maintains secondary indexes on
// request. Queries are built with an immutable builder and evaluated in a
// fixed order: filter, join, order, offset and limit, projection.
//
//	db, err := jsondb.OpenDir("./data")
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	users := jsondb.MustSchema("id",
//		jsondb.Field{Name: "id", Type: types.FieldTypeInt},
//		jsondb.Field{Name: "name", Type: types.FieldTypeString},
//	)
//	err = db.CreateTable("users", users)
//	_, err = db.Insert("users", jsondb.Record{"id": 1, "name": "A"}, jsondb.ConflictFail)
//	rows, err := db.Query("users").Where("id", jsondb.OpGt, 0).All()
//
// The database does not lock. Hosts that share one instance between
// goroutines serialise calls with pkg.LockWrap on the database.
package jsondb
