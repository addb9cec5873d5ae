package db

import (
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplFlat Implementation = "flat"
	ImplBolt Implementation = "bolt"
)

// Hint declares what a caller intends to do with a locked object.
type Hint uint8

const (
	// HintReadOnly locks an object for reading. The document is never
	// persisted on unlock and the backend releases its exclusivity right
	// after the document was read.
	HintReadOnly Hint = iota
	// HintWrite locks an object exclusively until it is unlocked.
	// Unlocking persists the document.
	HintWrite
)

func (h Hint) String() string {
	switch h {
	case HintReadOnly:
		return "read-only"
	case HintWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Feature represents backend features as bit flags
type Feature uint64

const (
	FeatureCreate            Feature = 1 << iota // Support for Create operations
	FeatureLock                                  // Support for write locks (Acquire with HintWrite)
	FeatureReadOnlyLock                          // Support for read-only locks (Acquire with HintReadOnly)
	FeatureDelete                                // Support for Delete operations
	FeatureExists                                // Support for Exists operations
	FeatureList                                  // Support for List operations
	FeatureSerializedWriters                     // Write handles are serialized by the backend itself (Acquire may block)
	FeatureCompression                           // Stored values may be compressed
)

var allFeatures = []Feature{
	FeatureCreate,
	FeatureLock,
	FeatureReadOnlyLock,
	FeatureDelete,
	FeatureExists,
	FeatureList,
	FeatureSerializedWriters,
	FeatureCompression,
}

func (f Feature) String() string {
	switch f {
	case FeatureCreate:
		return "Create"
	case FeatureLock:
		return "Lock"
	case FeatureReadOnlyLock:
		return "ReadOnlyLock"
	case FeatureDelete:
		return "Delete"
	case FeatureExists:
		return "Exists"
	case FeatureList:
		return "List"
	case FeatureSerializedWriters:
		return "SerializedWriters"
	case FeatureCompression:
		return "Compression"
	default:
		return "Unknown"
	}
}

// ExpandFeatures expands a feature bit set into its single flags.
func ExpandFeatures(features Feature) []Feature {
	list := make([]Feature, 0, len(allFeatures))
	for _, f := range allFeatures {
		if features&f == f {
			list = append(list, f)
		}
	}
	return list
}

// FeatureNames renders a feature bit set as a comma separated list.
func FeatureNames(features Feature) string {
	names := make([]string, 0, len(allFeatures))
	for _, f := range ExpandFeatures(features) {
		names = append(names, f.String())
	}
	return strings.Join(names, ",")
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Backend Interface
// --------------------------------------------------------------------------

// Handle is the backend's state for one locked object. It is returned by
// Backend.Create and Backend.Acquire and is owned by exactly one caller
// until Release is called.
//
// Thread-safety: A Handle must not be used concurrently.
type Handle interface {
	// Load reads and decodes the stored document.
	// A document that cannot be decoded yields ErrDecode.
	Load() (doc Document, err error)

	// Store persists doc as the object's new content. Only valid for
	// handles acquired with HintWrite (or created). Store releases nothing,
	// Release must still be called.
	Store(doc Document) (err error)

	// Release gives up the backend's exclusivity for the object. Calling
	// Release on a write handle that was not stored discards all changes.
	// Release is idempotent.
	Release() (err error)

	// Modified returns the last known modification time of the object.
	Modified() time.Time
}

// Backend defines an interface for storage backends of a document database.
// Objects are addressed by keys made of path segments (see package pathkey)
// and hold a single JSON object document each.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type Backend interface {

	// --------------------------------------------------------------------------
	// Object Operations
	// --------------------------------------------------------------------------

	// Create creates a new object holding an empty document and returns a
	// write handle for it. Fails with ErrAlreadyExists if the object exists.
	Create(key []string) (handle Handle, err error)

	// Acquire locks an existing object with the given intent.
	// Fails with ErrNotFound if the object does not exist and with ErrBusy if
	// the backend cannot grant the lock without waiting. Backends that
	// support FeatureSerializedWriters may block instead of failing.
	Acquire(key []string, hint Hint) (handle Handle, err error)

	// Delete removes an object. Fails with ErrNotFound if it does not exist.
	Delete(key []string) (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Exists reports whether an object with exactly this key exists.
	Exists(key []string) (exists bool, err error)

	// List returns the sorted, distinct names one level below prefix. Names
	// of objects and of sub namespaces are both included. An empty prefix
	// lists the root. A prefix without children yields an empty list.
	List(prefix []string) (names []string, err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the backend supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the backend.
	GetInfo() (info DatabaseInfo)

	// Close closes the backend. Handles still held become invalid.
	Close() (err error)
}
