package db

import "errors"

// Errors returned by backends and the database façade. They are usually
// wrapped with context, compare them with errors.Is.
var (
	ErrNotFound        = errors.New("object not found")
	ErrAlreadyExists   = errors.New("object already exists")
	ErrBusy            = errors.New("object is locked")
	ErrDecode          = errors.New("document cannot be decoded")
	ErrIO              = errors.New("storage error")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrClosed          = errors.New("database is closed")
)
