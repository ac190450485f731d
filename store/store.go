// Package store provides the durable key/value abstraction the
// authentication engine persists its state through.
package store

import "errors"

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("key not found")

// Store defines the interface for durable state storage. Keys are
// namespaced strings (e.g. "auth:access_token"); values are opaque bytes.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	List(prefix string) ([]string, error)
}
