// Package storage provides a pluggable key-value layer for the local
// transcript log. It provides a pebble backend by default, plus an in-memory
// backend for tests and temporary sessions.
package storage
