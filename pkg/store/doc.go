/*
Package store persists the marketplace counters in a single SQLite database.

It keeps one aggregate row per template (views, downloads, favorites and the
rating sum/count), a log of every served download used for per-IP download
limits, and one rating per template and IP address used for rating cooldowns.
Every mutating operation is a single read-modify-write, wrapped in a
transaction where it touches more than one row.

The pure Go driver (modernc.org/sqlite) is used by default. Building with the
cgo_sqlite tag switches to github.com/mattn/go-sqlite3.
*/
package store
