package reminder

import (
	"strconv"
	"strings"
)

// Resolve maps a user token onto one item of view, which must already be
// filtered and sorted with SortByAnchor.
//
// A purely numeric token is a 1-based position. Anything else is an exact
// ID, then the first ID with that prefix in view order.
func Resolve(view []Item, kind Kind, token string) (Item, error) {
	token = strings.TrimSpace(token)
	nf := &NotFoundError{Token: token, Kind: kind, Size: len(view)}
	if token == "" {
		return Item{}, nf
	}

	if isDigits(token) {
		pos, err := strconv.Atoi(token)
		if err != nil || pos < 1 || pos > len(view) {
			return Item{}, nf
		}
		return view[pos-1], nil
	}

	for _, it := range view {
		if it.ID == token {
			return it, nil
		}
	}
	for _, it := range view {
		if strings.HasPrefix(it.ID, token) {
			return it, nil
		}
	}
	return Item{}, nf
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
