//go:build cgo

package state

// The mattn driver registers itself as "sqlite3" and is selectable with
// store.driver when the binary is built with cgo.
import _ "github.com/mattn/go-sqlite3"
