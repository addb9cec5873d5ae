package pathkey

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/docdb/lib/db"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// MaxSegments is the maximum number of segments of a key. It is one less
	// than the largest count byte, so incrementing the count byte of any key
	// never overflows.
	MaxSegments = 254

	// FileSuffix is appended to the last segment of flat file paths.
	FileSuffix = ".json"
)

// --------------------------------------------------------------------------
// Validation
// --------------------------------------------------------------------------

// Validate checks that key has between 1 and MaxSegments segments and that
// no segment is empty or contains a NUL byte.
func Validate(key []string) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", db.ErrInvalidArgument)
	}
	return validateSegments(key)
}

// ValidatePrefix is like Validate but accepts an empty prefix (the root).
func ValidatePrefix(prefix []string) error {
	return validateSegments(prefix)
}

func validateSegments(key []string) error {
	if len(key) > MaxSegments {
		return fmt.Errorf("%w: key has %d segments, at most %d are allowed", db.ErrInvalidArgument, len(key), MaxSegments)
	}
	for i, seg := range key {
		if seg == "" {
			return fmt.Errorf("%w: segment %d is empty", db.ErrInvalidArgument, i)
		}
		if strings.IndexByte(seg, 0) >= 0 {
			return fmt.Errorf("%w: segment %d contains a NUL byte", db.ErrInvalidArgument, i)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Segment Escaping
// --------------------------------------------------------------------------

var (
	sanitizer   = strings.NewReplacer("%", "%25", "/", "%2F", "\\", "%5C", ".", "%2E")
	unsanitizer = strings.NewReplacer("%25", "%", "%2F", "/", "%5C", "\\", "%2E", ".")
)

// Sanitize escapes a segment so it can be used as a single file name.
// The escaped form contains no path separator and no dot, and distinct
// segments always escape to distinct names.
func Sanitize(segment string) string {
	return sanitizer.Replace(segment)
}

// Unsanitize reverses Sanitize. Names that Sanitize cannot have produced
// are rejected with ErrInvalidArgument.
func Unsanitize(name string) (string, error) {
	segment := unsanitizer.Replace(name)
	if name == "" || Sanitize(segment) != name {
		return "", fmt.Errorf("%w: %q is not an escaped segment", db.ErrInvalidArgument, name)
	}
	return segment, nil
}

// --------------------------------------------------------------------------
// File System Paths
// --------------------------------------------------------------------------

// FilePath returns the path of the file that stores key below root.
func FilePath(root string, key []string) (string, error) {
	if err := Validate(key); err != nil {
		return "", err
	}
	parts := make([]string, 0, len(key)+1)
	parts = append(parts, root)
	for _, seg := range key {
		parts = append(parts, Sanitize(seg))
	}
	parts[len(parts)-1] += FileSuffix
	return filepath.Join(parts...), nil
}

// DirPath returns the directory for key below root, leaving out the last
// strip segments. DirPath(root, key, 1) is the directory holding the file of
// key, DirPath(root, prefix, 0) the directory listing the children of prefix.
func DirPath(root string, key []string, strip int) (string, error) {
	if err := ValidatePrefix(key); err != nil {
		return "", err
	}
	if strip < 0 || strip > len(key) {
		return "", fmt.Errorf("%w: cannot strip %d segments from a key with %d", db.ErrInvalidArgument, strip, len(key))
	}
	parts := make([]string, 0, len(key)-strip+1)
	parts = append(parts, root)
	for _, seg := range key[:len(key)-strip] {
		parts = append(parts, Sanitize(seg))
	}
	return filepath.Join(parts...), nil
}

// --------------------------------------------------------------------------
// Binary Keys
// --------------------------------------------------------------------------

// BinaryKey encodes key as one count byte followed by every segment and a
// NUL terminator. Keys with fewer segments sort before keys with more.
func BinaryKey(key []string) ([]byte, error) {
	if err := Validate(key); err != nil {
		return nil, err
	}
	return appendBody([]byte{byte(len(key))}, key), nil
}

// ParseBinaryKey decodes a key produced by BinaryKey.
func ParseBinaryKey(b []byte) ([]string, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty binary key", db.ErrInvalidArgument)
	}
	count := int(b[0])
	body := b[1:]
	key := make([]string, 0, count)
	for len(body) > 0 {
		end := bytes.IndexByte(body, 0)
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated segment in binary key", db.ErrInvalidArgument)
		}
		key = append(key, string(body[:end]))
		body = body[end+1:]
	}
	if len(key) != count {
		return nil, fmt.Errorf("%w: binary key announces %d segments but has %d", db.ErrInvalidArgument, count, len(key))
	}
	return key, Validate(key)
}

// ChildRange returns the scan range [lo, hi) of all binary keys that have
// exactly depth segments and start with prefix. depth must exceed
// len(prefix) and be at most MaxSegments.
func ChildRange(prefix []string, depth int) (lo, hi []byte, err error) {
	if err := ValidatePrefix(prefix); err != nil {
		return nil, nil, err
	}
	if depth <= len(prefix) || depth > MaxSegments {
		return nil, nil, fmt.Errorf("%w: depth %d out of range for a prefix with %d segments", db.ErrInvalidArgument, depth, len(prefix))
	}
	lo = appendBody([]byte{byte(depth)}, prefix)
	hi = []byte{byte(depth + 1)}
	return lo, hi, nil
}

// SegmentAt returns segment i of a binary key without decoding the rest.
func SegmentAt(b []byte, i int) (string, bool) {
	if len(b) == 0 || i < 0 || i >= int(b[0]) {
		return "", false
	}
	body := b[1:]
	for ; i > 0; i-- {
		end := bytes.IndexByte(body, 0)
		if end < 0 {
			return "", false
		}
		body = body[end+1:]
	}
	end := bytes.IndexByte(body, 0)
	if end < 0 {
		return "", false
	}
	return string(body[:end]), true
}

func appendBody(b []byte, key []string) []byte {
	for _, seg := range key {
		b = append(b, seg...)
		b = append(b, 0)
	}
	return b
}
