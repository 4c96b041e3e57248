package telegram

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	kit "remindbot/internal/transport"
)

var (
	boldRe   = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	italicRe = regexp.MustCompile(`(^|[\s(\[])_([^_\n]+)_($|[\s).,!?:;\]])`)
)

// RenderHTML converts the markdown subset (**bold**, _italic_, `code`) to
// Telegram HTML. Everything else is escaped.
func RenderHTML(md string) string {
	var b strings.Builder
	parts := strings.Split(md, "`")
	for i, p := range parts {
		// Odd segments sit between backticks; an unpaired trailing one is text.
		if i%2 == 1 && i < len(parts)-1 {
			b.WriteString("<code>" + html.EscapeString(p) + "</code>")
			continue
		}
		if i%2 == 1 {
			b.WriteString("`")
		}
		s := html.EscapeString(p)
		s = boldRe.ReplaceAllString(s, "<b>$1</b>")
		s = italicRe.ReplaceAllString(s, "${1}<i>${2}</i>${3}")
		b.WriteString(s)
	}
	return b.String()
}

func mentionHTML(userID int64) string {
	id := strconv.FormatInt(userID, 10)
	return `<a href="tg://user?id=` + id + `">` + id + `</a>`
}

// renderRich lays msg out as Telegram HTML.
func renderRich(msg kit.Rich) string {
	var lines []string
	if len(msg.Mentions) > 0 {
		ms := make([]string, 0, len(msg.Mentions))
		for _, id := range msg.Mentions {
			ms = append(ms, mentionHTML(id))
		}
		lines = append(lines, strings.Join(ms, " "))
	}
	if msg.Title != "" {
		lines = append(lines, "<b>"+RenderHTML(msg.Title)+"</b>")
	}
	if msg.Body != "" {
		lines = append(lines, RenderHTML(msg.Body))
	}
	if len(msg.Fields) > 0 {
		lines = append(lines, "")
		for _, f := range msg.Fields {
			lines = append(lines, "<b>"+RenderHTML(f.Name)+"</b>: "+RenderHTML(f.Value))
		}
	}
	if msg.Footer != "" {
		lines = append(lines, "", "<i>"+RenderHTML(msg.Footer)+"</i>")
	}
	return strings.Join(lines, "\n")
}

const textLimit = 4000

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries and never splitting inside an HTML tag.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
			open, closed := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					open = i
				case '>':
					closed = i
				}
			}
			if open > closed && open > start+1 {
				end = open
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
