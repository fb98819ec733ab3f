package release

import (
	"cmp"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// partsCount is the number of components in a 1C version.
const partsCount = 4

// ErrMalformedVersion is returned by callers that require a well-formed version.
var ErrMalformedVersion = errors.New("malformed version")

// Version is a parsed major.minor.patch.build release number.
type Version [partsCount]uint64

// Parse parses a dotted 4-part version such as "8.3.20.1".
// Names with a different number of parts or any non-numeric part are rejected.
func Parse(s string) (Version, bool) {
	return parseSeparated(s, ".")
}

func parseSeparated(s, sep string) (Version, bool) {
	var v Version

	parts := strings.Split(s, sep)
	if len(parts) != partsCount {
		return v, false
	}

	for i, part := range parts {
		// Signs, spaces and empty parts are rejected.
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return v, false
		}

		v[i] = n
	}

	return v, true
}

// Compare returns -1, 0 or +1 comparing v with other, most significant part first.
func (v Version) Compare(other Version) int {
	for i := range v {
		if c := cmp.Compare(v[i], other[i]); c != 0 {
			return c
		}
	}

	return 0
}

// String renders the version in dotted form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], v[3])
}

// Same reports whether two reported version strings denote the same release.
// Parsable values are compared numerically so that "8.3.020.1" equals
// "8.3.20.1"; anything else falls back to exact string comparison.
func Same(a, b string) bool {
	va, okA := Parse(a)
	vb, okB := Parse(b)

	if okA && okB {
		return va == vb
	}

	return a == b
}
