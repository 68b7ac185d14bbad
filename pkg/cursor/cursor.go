// Package cursor implements the base64 pagination cursor spec §6
// describes: a stable record callers round-trip between calls to
// `execute` instead of re-stating offsets.
package cursor

import (
	"encoding/base64"
	"encoding/json"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
)

// Cursor is the decoded continuation token. SortColumn lets the reader
// reject a cursor minted against a different ORDER BY than the one the
// current query uses.
type Cursor struct {
	SortColumn     string      `json:"sort_column"`
	LastValue      interface{} `json:"last_value"`
	LastPK         string      `json:"last_pk"`
	Direction      string      `json:"direction"`
	EffectiveLimit int         `json:"effective_limit"`
}

// Encode renders c as the opaque token callers pass back as `cursor`.
func Encode(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", kverrs.Internal.Wrap(err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses a token produced by Encode. A malformed token is an
// InvalidArgument, not an Internal error — it's caller input.
func Decode(token string) (Cursor, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, kverrs.InvalidArgument.New("malformed cursor: %v", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, kverrs.InvalidArgument.New("malformed cursor: %v", err)
	}
	return c, nil
}

// Validate checks a decoded cursor was minted for sortColumn, the
// current query's ORDER BY field (spec §6: "readers validate that the
// sort_column matches the current query").
func Validate(c Cursor, sortColumn string) error {
	if c.SortColumn != sortColumn {
		return kverrs.InvalidArgument.New("cursor sort_column %q does not match query order %q", c.SortColumn, sortColumn)
	}
	return nil
}
