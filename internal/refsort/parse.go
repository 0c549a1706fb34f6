package refsort

import (
	"fmt"
	"strings"
)

// ParseKey decodes one --sort key: a field name, with a trailing "-"
// for descending order. Recognized fields: name, author-name,
// author-email, author-date, committer-name, committer-email,
// committer-date.
func ParseKey(s string) (Key, error) {
	desc := strings.HasSuffix(s, "-")
	field := strings.TrimSuffix(s, "-")

	asc, ok := map[string][2]Key{
		"name":            {NameAsc, NameDesc},
		"author-name":     {AuthorNameAsc, AuthorNameDesc},
		"author-email":    {AuthorEmailAsc, AuthorEmailDesc},
		"author-date":     {AuthorTimestampAsc, AuthorTimestampDesc},
		"committer-name":  {CommitterNameAsc, CommitterNameDesc},
		"committer-email": {CommitterEmailAsc, CommitterEmailDesc},
		"committer-date":  {CommitterTimestampAsc, CommitterTimestampDesc},
	}[field]
	if !ok {
		return 0, fmt.Errorf("unknown sort key %q", s)
	}
	if desc {
		return asc[1], nil
	}
	return asc[0], nil
}

// ParseKeys decodes a full --sort value.
func ParseKeys(keys []string) ([]Key, error) {
	out := make([]Key, len(keys))
	for i, s := range keys {
		k, err := ParseKey(s)
		if err != nil {
			return nil, err
		}
		out[i] = k
	}
	return out, nil
}
