package store

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/docdb/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the generic interface for interacting with a document store.
// Keys are sequences of path segments, values are JSON object documents.
// All methods return a *Error on failure, the code tells what went wrong.
type IStore interface {
	// Create stores doc under a new key. Fails with RetCAlreadyExists if the
	// key exists. A failed Create leaves no object behind.
	Create(key []string, doc db.Document) (err error)
	// Put inserts or replaces the document stored under key.
	Put(key []string, doc db.Document) (err error)
	// Get returns the document stored under key. The boolean return value
	// indicates whether the key was found.
	Get(key []string) (doc db.Document, loaded bool, err error)
	// Delete removes the document stored under key. Fails with
	// RetCNotFound if the key does not exist.
	Delete(key []string) (err error)
	// Exists returns whether a document is stored under key.
	Exists(key []string) (exists bool, err error)
	// List returns the sorted names of documents and namespaces one level
	// below prefix. An empty prefix lists the root.
	List(prefix []string) (names []string, err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Is makes errors.Is(err, db.ErrNotFound) and friends work for store
// errors, also for errors that crossed the network.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Code == e.Code
	}
	sentinel, ok := sentinels[e.Code]
	return ok && sentinel == target
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// FromError converts an error of the db package into a store error.
// nil stays nil and store errors are returned unchanged.
func FromError(err error) error {
	if err == nil {
		return nil
	}
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr
	}
	for code, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return NewError(code, err.Error())
		}
	}
	return NewError(RetCInternalError, err.Error())
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCNotFound                            // 4: The document does not exist.
	RetCAlreadyExists                       // 5: The document already exists.
	RetCBusy                                // 6: The document is locked by someone else.
	RetCDecodeError                         // 7: The stored document cannot be decoded.
	RetCIOError                             // 8: The storage failed.
	RetCInvalidArgument                     // 9: The key or document is invalid.
	RetCClosed                              // 10: The database is closed.
)

var sentinels = map[RetCode]error{
	RetCNotFound:        db.ErrNotFound,
	RetCAlreadyExists:   db.ErrAlreadyExists,
	RetCBusy:            db.ErrBusy,
	RetCDecodeError:     db.ErrDecode,
	RetCIOError:         db.ErrIO,
	RetCInvalidArgument: db.ErrInvalidArgument,
	RetCClosed:          db.ErrClosed,
}

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCNotFound:
		return "NotFound"
	case RetCAlreadyExists:
		return "AlreadyExists"
	case RetCBusy:
		return "Busy"
	case RetCDecodeError:
		return "DecodeError"
	case RetCIOError:
		return "IOError"
	case RetCInvalidArgument:
		return "InvalidArgument"
	case RetCClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
