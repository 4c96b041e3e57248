package router

import (
	"slices"
	"strings"
	"unicode"

	kit "remindbot/internal/transport"
)

// menuName converts a route or alias to a command name accepted by chat
// menus: [a-z0-9_]{1,32}, starting with a letter.
func menuName(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			underscore = false
		case r == '_' || r == '-' || r == '/' || unicode.IsSpace(r):
			if b.Len() > 0 && !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
	}
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

// buildMenu lists top-level commands first, then joined multi-word routes.
func buildMenu(root *cmdNode, leaves []Command) []kit.BotCommand {
	seen := map[string]bool{}
	var out []kit.BotCommand
	add := func(name, desc string, locked bool) {
		name = menuName(name)
		if name == "" || seen[name] || len(out) >= 100 {
			return
		}
		seen[name] = true
		desc = strings.ReplaceAll(strings.TrimSpace(desc), "\n", " ")
		if desc == "" {
			desc = name
		}
		if locked {
			desc = "🔒 " + desc
		}
		if r := []rune(desc); len(r) > 256 {
			desc = string(r[:256])
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
	}

	for _, name := range root.childNames() {
		n, _ := root.child(name)
		add(name, describe(n), ownerOnly(n))
	}
	var multi []Command
	for _, c := range leaves {
		if len(splitRoute(c.Route)) > 1 {
			multi = append(multi, c)
		}
	}
	slices.SortFunc(multi, func(a, b Command) int { return strings.Compare(a.Route, b.Route) })
	for _, c := range multi {
		add(strings.Join(splitRoute(c.Route), "_"), c.Description, c.Access == AccessOwnerOnly)
	}
	return out
}
