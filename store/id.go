package store

import (
	"fmt"
	"strconv"
	"strings"
)

// RefKind distinguishes what an LCM ID names.
type RefKind string

const (
	RefMessage RefKind = "message"
	RefSummary RefKind = "summary"
	RefFile    RefKind = "file"
)

// MessageRef formats a message's LCM ID: the bare integer.
func MessageRef(id int64) string {
	return strconv.FormatInt(id, 10)
}

// SummaryRef formats a summary's LCM ID: "S" followed by the integer.
func SummaryRef(id int64) string {
	return "S" + strconv.FormatInt(id, 10)
}

// FileRefID formats a file reference's LCM ID: "F" followed by the integer.
func FileRefID(id int64) string {
	return "F" + strconv.FormatInt(id, 10)
}

// ParseRef splits an LCM ID into its kind and numeric id. A bare integer
// is a message; "S"-prefixed is a summary; "F"-prefixed is a file
// reference.
func ParseRef(raw string) (RefKind, int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0, fmt.Errorf("empty id")
	}

	switch raw[0] {
	case 'S', 's':
		id, err := strconv.ParseInt(raw[1:], 10, 64)
		if err != nil {
			return "", 0, fmt.Errorf("invalid summary id %q: %w", raw, err)
		}
		return RefSummary, id, nil
	case 'F', 'f':
		id, err := strconv.ParseInt(raw[1:], 10, 64)
		if err != nil {
			return "", 0, fmt.Errorf("invalid file id %q: %w", raw, err)
		}
		return RefFile, id, nil
	default:
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", 0, fmt.Errorf("invalid message id %q: %w", raw, err)
		}
		return RefMessage, id, nil
	}
}
