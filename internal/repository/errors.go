// Package repository holds the MySQL-backed stores and the sentinel errors
// they share.  Handlers and services compare against these values with
// errors.Is instead of inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup or a conditional update matched no
// row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert violates the unique email index.
var ErrEmailExists = errors.New("email already exists")

