package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

type Pagination struct {
	PageSize  int32  `form:"page_size" json:"page_size"`
	PageToken string `form:"page_token" json:"page_token"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// Cursor is the opaque keyset cursor encoded into page tokens.
type Cursor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

var ErrInvalidCursor = errors.New("invalid_cursor")

func EncodeCursor(c Cursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func DecodeCursor(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, ErrInvalidCursor
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	if c.ID == "" || c.CreatedAt == "" {
		return Cursor{}, ErrInvalidCursor
	}
	return c, nil
}

// BuildCursorPageInfo derives the page info from an over-fetched result set
// (limit+1 rows) using the supplied token builder for the last visible item.
func BuildCursorPageInfo[T any](items []*T, pageSize int32, token func(item *T) string) *PageInfo {
	if pageSize <= 0 || len(items) == 0 {
		return &PageInfo{}
	}
	if len(items) <= int(pageSize) {
		return &PageInfo{}
	}
	last := items[pageSize-1]
	return &PageInfo{
		NextPageToken: token(last),
		HasMore:       true,
	}
}
