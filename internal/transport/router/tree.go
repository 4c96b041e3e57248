package router

import (
	"slices"
	"strings"
)

type cmdNode struct {
	name     string
	cmd      *Command
	children map[string]*cmdNode
}

func newRoot() *cmdNode {
	return &cmdNode{children: map[string]*cmdNode{}}
}

func splitRoute(route string) []string {
	return strings.Fields(strings.ToLower(route))
}

func (n *cmdNode) add(route []string, c Command) *cmdNode {
	cur := n
	for _, tok := range route {
		next, ok := cur.children[tok]
		if !ok {
			next = &cmdNode{name: tok, children: map[string]*cmdNode{}}
			cur.children[tok] = next
		}
		cur = next
	}
	cur.cmd = &c
	return cur
}

func (n *cmdNode) child(name string) (*cmdNode, bool) {
	c, ok := n.children[name]
	return c, ok
}

func (n *cmdNode) childNames() []string {
	out := make([]string, 0, len(n.children))
	for k := range n.children {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// walk descends from n along args while tokens name children. It stops at
// the first flag.
func (n *cmdNode) walk(args []string) (*cmdNode, []string, []string) {
	cur := n
	var path []string
	for len(args) > 0 {
		tok := strings.ToLower(args[0])
		if strings.HasPrefix(tok, "-") {
			break
		}
		next, ok := cur.child(tok)
		if !ok {
			break
		}
		cur = next
		path = append(path, tok)
		args = args[1:]
	}
	return cur, path, args
}
