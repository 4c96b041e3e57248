package router

import (
	"context"
	"slices"
	"strings"
)

func (m *Router) groupHelp(path []string) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		return req.Reply(ctx, m.helpText(path))
	}
}

// helpText renders the command list, or one command's details when path
// names it. Output uses the router's markdown subset.
func (m *Router) helpText(path []string) string {
	m.mu.RLock()
	root, alias := m.root, m.alias
	m.mu.RUnlock()

	if len(path) == 0 {
		return topHelp(root)
	}
	word := strings.ToLower(strings.TrimPrefix(path[0], "/"))
	if leaf, ok := alias[word]; ok && leaf.cmd != nil {
		return nodeHelp(leaf, splitRoute(leaf.cmd.Route))
	}
	cur, ok := root.child(word)
	if !ok {
		return "❓ **Perintah tidak dikenal**\nKetik `/help` untuk melihat daftar perintah."
	}
	node, rest, _ := cur.walk(path[1:])
	return nodeHelp(node, append([]string{word}, rest...))
}

func topHelp(root *cmdNode) string {
	type row struct {
		name, desc string
		lock       bool
	}
	var rows []row
	for _, name := range root.childNames() {
		n, _ := root.child(name)
		rows = append(rows, row{name: name, desc: describe(n), lock: ownerOnly(n)})
	}
	// Owner-only commands go last.
	slices.SortStableFunc(rows, func(a, b row) int {
		switch {
		case a.lock == b.lock:
			return strings.Compare(a.name, b.name)
		case a.lock:
			return 1
		default:
			return -1
		}
	})

	lines := []string{"📚 **Daftar Perintah**", "Ketik `/help <perintah>` untuk detail.", ""}
	for _, r := range rows {
		line := "• "
		if r.lock {
			line += "🔒 "
		}
		line += "`/" + r.name + "`"
		if r.desc != "" {
			line += " - " + r.desc
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func nodeHelp(n *cmdNode, full []string) string {
	lines := []string{"📚 **Bantuan** `/" + strings.Join(full, " ") + "`"}
	if c := n.cmd; c != nil {
		if d := strings.TrimSpace(c.Description); d != "" {
			lines = append(lines, d)
		}
		if c.Access == AccessOwnerOnly {
			lines = append(lines, "🔒 _Khusus owner_")
		}
		if u := strings.TrimSpace(c.Usage); u != "" {
			lines = append(lines, "", "**Format**", "`"+u+"`")
		}
		if len(c.Aliases) > 0 {
			short := make([]string, 0, len(c.Aliases))
			for _, a := range c.Aliases {
				short = append(short, "`/"+a+"`")
			}
			lines = append(lines, "", "**Shortcut** "+strings.Join(short, ", "))
		}
	}
	if len(n.children) > 0 {
		lines = append(lines, "", "**Subperintah**")
		for _, name := range n.childNames() {
			ch, _ := n.child(name)
			line := "• `/" + strings.Join(append(slices.Clone(full), name), " ") + "`"
			if d := describe(ch); d != "" {
				line += " - " + d
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func describe(n *cmdNode) string {
	if n.cmd != nil {
		if d := strings.TrimSpace(n.cmd.Description); d != "" {
			return d
		}
	}
	kids := n.childNames()
	if len(kids) == 0 {
		return ""
	}
	s := strings.Join(kids[:min(3, len(kids))], ", ")
	if len(kids) > 3 {
		s += ", …"
	}
	return "subperintah: " + s
}

// ownerOnly is true for an owner-only command, or a group whose every
// command is owner-only.
func ownerOnly(n *cmdNode) bool {
	if n.cmd != nil {
		return n.cmd.Access == AccessOwnerOnly
	}
	if len(n.children) == 0 {
		return false
	}
	for _, ch := range n.children {
		if !ownerOnly(ch) {
			return false
		}
	}
	return true
}
