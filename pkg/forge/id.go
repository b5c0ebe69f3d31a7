package forge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// IDKind tells which shape an ID holds.
type IDKind int

const (
	// IDNone is the zero ID.
	IDNone IDKind = iota
	// IDNumeric is a backend-global integer, used by GitLab projects and by
	// comment ids on both backends.
	IDNumeric
	// IDSlug is an "owner/name" path, used by GitHub repositories.
	IDSlug
)

// ID is a tagged union of a numeric identifier and an "owner/name" slug.
// Adapters reject the shape that does not belong to their backend.
type ID struct {
	kind IDKind
	num  int64
	slug string
}

// NumericID returns a numeric identifier.
func NumericID(n int64) ID { return ID{kind: IDNumeric, num: n} }

// SlugID returns an "owner/name" identifier.
func SlugID(s string) ID { return ID{kind: IDSlug, slug: s} }

// ParseID reads a command-line style identifier: all digits is numeric,
// anything else a slug.
func ParseID(s string) ID {
	s = strings.TrimSpace(s)
	if s == "" {
		return ID{}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return NumericID(n)
	}
	return SlugID(s)
}

// Kind returns the shape of id.
func (id ID) Kind() IDKind { return id.kind }

// Numeric returns the numeric value when id is numeric.
func (id ID) Numeric() (int64, bool) { return id.num, id.kind == IDNumeric }

// Slug returns the slug when id is a slug.
func (id ID) Slug() (string, bool) { return id.slug, id.kind == IDSlug }

// IsZero reports whether id is unset.
func (id ID) IsZero() bool { return id.kind == IDNone }

func (id ID) String() string {
	switch id.kind {
	case IDNumeric:
		return strconv.FormatInt(id.num, 10)
	case IDSlug:
		return id.slug
	}
	return ""
}

// MarshalJSON encodes numeric ids as JSON numbers and slugs as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case IDNumeric:
		return []byte(strconv.FormatInt(id.num, 10)), nil
	case IDSlug:
		return json.Marshal(id.slug)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts a number, a string or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ID{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = SlugID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("forge: invalid id %s", data)
	}
	*id = NumericID(n)
	return nil
}

// SplitFullName splits "owner/name" on the last separator, so GitLab
// subgroup paths like "group/sub/project" yield ("group/sub", "project").
func SplitFullName(fullName string) (owner, name string, err error) {
	fullName = strings.Trim(fullName, "/")
	i := strings.LastIndex(fullName, "/")
	if i <= 0 || i == len(fullName)-1 {
		return "", "", fmt.Errorf("forge: %q is not of the form owner/name", fullName)
	}
	return fullName[:i], fullName[i+1:], nil
}
