package ranker

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/note-search/pkg/errors"
)

// EndOffset marks the end of a result list.
const EndOffset = -1

// EndCursor is the string form of a cursor past the last result.
const EndCursor = "-1"

// Cursor locates the next page: an offset into the ranked list of the index
// generation it was produced from. A zero Generation means "current".
type Cursor struct {
	Offset     int
	Generation int64
}

// IsEnd reports whether the cursor is the end sentinel.
func (c Cursor) IsEnd() bool {
	return c.Offset == EndOffset
}

// String renders the cursor as "<offset>" or "<offset>.<generation>".
func (c Cursor) String() string {
	if c.IsEnd() {
		return EndCursor
	}
	if c.Generation == 0 {
		return strconv.Itoa(c.Offset)
	}
	return strconv.Itoa(c.Offset) + "." + strconv.FormatInt(c.Generation, 10)
}

// ParseCursor reads a cursor produced by Cursor.String. The empty string is
// the first page.
func ParseCursor(s string) (Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Cursor{}, nil
	}
	if s == EndCursor {
		return Cursor{Offset: EndOffset}, nil
	}
	offPart, genPart, hasGen := strings.Cut(s, ".")
	offset, err := strconv.Atoi(offPart)
	if err != nil || offset < 0 {
		return Cursor{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidCursor, s)
	}
	c := Cursor{Offset: offset}
	if hasGen {
		gen, err := strconv.ParseInt(genPart, 10, 64)
		if err != nil || gen < 0 {
			return Cursor{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidCursor, s)
		}
		c.Generation = gen
	}
	return c, nil
}

// Paginate returns up to limit docs starting at offset and the offset of the
// following page, or EndOffset when nothing is left.
func Paginate(docs []ScoredDoc, limit, offset int) ([]ScoredDoc, int) {
	if offset < 0 || offset >= len(docs) || limit <= 0 {
		return []ScoredDoc{}, EndOffset
	}
	end := min(offset+limit, len(docs))
	page := docs[offset:end]
	if end >= len(docs) {
		return page, EndOffset
	}
	return page, end
}
