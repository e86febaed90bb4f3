//go:build !sqlite_vec || !cgo

package store

import (
	_ "modernc.org/sqlite"
)

// DriverName selects the pure-Go sqlite driver. Vector search falls back
// to a brute-force scan; build with -tags "sqlite_vec sqlite_fts5" and cgo
// for the accelerated path.
const DriverName = "sqlite"
