// Package pagination implements newest-first keyset paging. Cursors are
// opaque to clients and carry the sort timestamp and id of the last row.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params are the page inputs read from the query string.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is a keyset position. ID breaks ties between equal timestamps.
type Cursor struct {
	SortAt time.Time `json:"t"`
	ID     uuid.UUID `json:"id"`
}

// NormalizeLimit applies DefaultLimit and MaxLimit.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// EncodeCursor renders cursor as a URL-safe token.
func EncodeCursor(cursor Cursor) string {
	cursor.SortAt = cursor.SortAt.UTC()
	raw, _ := json.Marshal(cursor)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseCursor decodes a token from EncodeCursor. A blank token is the first
// page and yields nil.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, invalidCursor(err)
	}
	var cursor Cursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return nil, invalidCursor(err)
	}
	if cursor.ID == uuid.Nil || cursor.SortAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor").WithDetails(map[string]any{"field": "cursor"})
	}
	return &cursor, nil
}

func invalidCursor(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor").WithDetails(map[string]any{"field": "cursor"})
}

// NewestFirst orders by column then id descending, starts after cursor and
// fetches one row past the page so Trim can tell whether another page exists.
// column must be a trusted identifier.
func NewestFirst(column string, cursor *Cursor, limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if cursor != nil {
			db = db.Where("("+column+" < ?) OR ("+column+" = ? AND id < ?)", cursor.SortAt, cursor.SortAt, cursor.ID)
		}
		return db.Order(column + " DESC").Order("id DESC").Limit(NormalizeLimit(limit) + 1)
	}
}

// Trim cuts rows fetched with NewestFirst down to the page and returns the
// next cursor, or "" on the last page.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	page := rows[:limit]
	return page, EncodeCursor(key(page[limit-1]))
}
