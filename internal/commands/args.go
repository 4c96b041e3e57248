package commands

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	dateRe    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	clockRe   = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
	discordRe = regexp.MustCompile(`^<@!?(\d+)>$`)
)

// takeWallClock consumes one wall-clock value from args. It is either a
// quoted "YYYY-MM-DD HH:MM" token or a date token followed by a time token.
func takeWallClock(args []string) (value string, rest []string, ok bool) {
	if len(args) == 0 {
		return "", nil, false
	}
	if len(args) >= 2 && dateRe.MatchString(args[0]) && clockRe.MatchString(args[1]) {
		return args[0] + " " + args[1], args[2:], true
	}
	return args[0], args[1:], true
}

// userIDs collects assignees from the message's resolved mentions and from
// tokens that are numeric IDs or <@id> mentions. Order is kept, duplicates
// dropped.
func userIDs(mentions []int64, tokens []string) []int64 {
	var out []int64
	seen := map[int64]bool{}
	add := func(id int64) {
		if id > 0 && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range mentions {
		add(id)
	}
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if m := discordRe.FindStringSubmatch(t); m != nil {
			t = m[1]
		}
		if id, err := strconv.ParseInt(t, 10, 64); err == nil {
			add(id)
		}
	}
	return out
}

// pageArg reads the 1-based page from the first positional or --halaman.
func pageArg(args []string, flags map[string]string) int {
	raw := ""
	if len(args) > 0 {
		raw = args[0]
	}
	for _, k := range []string{"halaman", "page", "p"} {
		if v, ok := flags[k]; ok {
			raw = v
			break
		}
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// paginate returns the bounds of page over n items and the clamped page
// and page count.
func paginate(n, page int) (from, to, cur, pages int) {
	pages = max((n+PageSize-1)/PageSize, 1)
	cur = min(max(page, 1), pages)
	from = (cur - 1) * PageSize
	to = min(from+PageSize, n)
	return from, to, cur, pages
}
