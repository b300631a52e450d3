//go:build cgo

package main

// The libsql remote backend needs the "libsql" database/sql driver, which
// requires cgo.
import _ "github.com/tursodatabase/go-libsql"
