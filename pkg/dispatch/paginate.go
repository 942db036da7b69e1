package dispatch

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/keshon/switchboard/pkg/platform"
)

// Embed limits applied by PaginateEmbed.
const (
	MaxEmbedDescription = 2048
	MaxEmbedFields      = 15
	MaxEmbedPages       = 10
)

// ErrEmbedTooLarge is returned when an embed needs more than MaxEmbedPages pages.
var ErrEmbedTooLarge = errors.New("embed too large to paginate")

// SplitText cuts s into a head of at most limit characters and the rest,
// preferring to cut at the last newline, then the last space.
func SplitText(s string, limit int) (string, string) {
	r := []rune(s)
	if len(r) <= limit {
		return s, ""
	}
	window := string(r[:limit])
	if i := strings.LastIndex(window, "\n"); i >= 0 {
		return s[:i], s[i+1:]
	}
	if i := strings.LastIndex(window, " "); i >= 0 {
		return s[:i], s[i+1:]
	}
	return window, string(r[limit:])
}

// PaginateEmbed splits an embed whose description or field list is too long
// into consecutive pages titled "Title (2)", "Title (3)", ...
func PaginateEmbed(e platform.Embed) ([]platform.Embed, error) {
	var pages []platform.Embed
	cur := e
	cur.Fields = slices.Clone(e.Fields)

	for page := 1; ; page++ {
		var rest string
		cur.Description, rest = SplitText(cur.Description, MaxEmbedDescription)

		var overflow []platform.EmbedField
		switch {
		case rest != "":
			// fields follow the end of the description
			overflow, cur.Fields = cur.Fields, nil
		case len(cur.Fields) > MaxEmbedFields:
			overflow, cur.Fields = cur.Fields[MaxEmbedFields:], cur.Fields[:MaxEmbedFields]
		}
		pages = append(pages, cur)

		if rest == "" && len(overflow) == 0 {
			break
		}
		if len(pages) == MaxEmbedPages {
			return nil, fmt.Errorf("%w: more than %d pages", ErrEmbedTooLarge, MaxEmbedPages)
		}
		cur = platform.Embed{
			Title:       fmt.Sprintf("%s (%d)", e.Title, page+1),
			Description: rest,
			Color:       e.Color,
			Fields:      overflow,
		}
	}
	return pages, nil
}
