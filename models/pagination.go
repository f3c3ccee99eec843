package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type PageInfo struct {
	StartCursor string `json:"startCursor"`
	EndCursor   string `json:"endCursor"`
	HasNextPage *bool  `json:"hasNextPage,omitempty"`
}

// EncodeCompositeCursor keys a row by creation time and id, newest first.
func EncodeCompositeCursor(createdAt time.Time, id int) string {
	cursor := fmt.Sprintf("%s|%d", createdAt.UTC().Format(time.RFC3339Nano), id)
	return base64.StdEncoding.EncodeToString([]byte(cursor))
}

// DecodeCompositeCursor returns a zero time and id for an empty cursor.
func DecodeCompositeCursor(cursor *string) (time.Time, int, error) {
	if cursor == nil || *cursor == "" {
		return time.Time{}, 0, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(*cursor)
	if err != nil {
		return time.Time{}, 0, ErrInvalidCursor
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return time.Time{}, 0, ErrInvalidCursor
	}

	createdAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, 0, ErrInvalidCursor
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, 0, ErrInvalidCursor
	}

	return createdAt, id, nil
}

// ClampPageSize maps zero or negative to the default and caps at MaxPageSize.
func ClampPageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

type CloseRunPage struct {
	Runs     []CloseRunRecord `json:"runs"`
	PageInfo PageInfo         `json:"page_info"`
}
