package transform

import (
	"html"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// jsx lowers an element to a factory call:
//
//	<A x="1" {...p}>hi {v}</A>  =>  React.createElement(A, { x: "1", ...p }, "hi ", v)
func (e *emitter) jsx(n *sitter.Node) string {
	e.usesJSX = true
	e.used[factoryRoot(e.opts.Factory)] = true

	if n.Type() == "jsx_self_closing_element" {
		return e.createElement(n, nil)
	}

	count := int(n.ChildCount())
	open, end := n.Child(0), count
	if count > 1 && n.Child(count-1).Type() == "jsx_closing_element" {
		end = count - 1
	}
	return e.createElement(open, e.jsxChildren(n, 1, end))
}

// jsxChildren emits children first..end-1 of n; first is at least 1.
// Text runs are taken from the source spans between non-text children so
// whitespace handling does not depend on how the grammar splits text and
// entities.
func (e *emitter) jsxChildren(n *sitter.Node, first, end int) []string {
	var args []string
	cursor := n.Child(first - 1).EndByte()
	limit := n.EndByte()
	if end < int(n.ChildCount()) {
		limit = n.Child(end).StartByte()
	}
	for i := first; i < end; i++ {
		c := n.Child(i)
		switch c.Type() {
		case "jsx_expression":
		case "jsx_element", "jsx_self_closing_element":
		default:
			continue
		}
		if t := jsxText(e.src[cursor:c.StartByte()]); t != "" {
			args = append(args, jsString(t))
		}
		cursor = c.EndByte()
		if c.Type() == "jsx_expression" {
			if s := e.jsxExpression(c); s != "" {
				args = append(args, s)
			}
			continue
		}
		args = append(args, e.emit(c))
	}
	if cursor < limit {
		if t := jsxText(e.src[cursor:limit]); t != "" {
			args = append(args, jsString(t))
		}
	}
	return args
}

// jsxExpression emits the contents of {...}; empty and comment-only
// containers produce nothing.
func (e *emitter) jsxExpression(n *sitter.Node) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() != "comment" {
			return e.emit(c)
		}
	}
	return ""
}

// createElement builds the factory call. el is the opening or self-closing
// element; a nameless opening element is a fragment.
func (e *emitter) createElement(el *sitter.Node, children []string) string {
	tag := e.opts.Fragment
	if name := elementName(el); name != nil {
		tag = e.tagName(name)
	}
	props := e.props(el)
	if tag == e.opts.Fragment {
		if root := factoryRoot(tag); root != "" {
			e.used[root] = true
		}
	}
	args := append([]string{tag, props}, children...)
	return e.opts.Factory + "(" + strings.Join(args, ", ") + ")"
}

// tagName returns an intrinsic tag as a string and a component as an
// expression.
func (e *emitter) tagName(n *sitter.Node) string {
	text := strings.Join(strings.Fields(n.Content(e.src)), "")
	if n.Type() == "jsx_namespace_name" {
		return jsString(text)
	}
	if n.Type() == "identifier" && (strings.ContainsRune(text, '-') || isLowerStart(text)) {
		return jsString(text)
	}
	root, _, _ := strings.Cut(text, ".")
	e.used[root] = true
	return text
}

func elementName(el *sitter.Node) *sitter.Node {
	if name := el.ChildByFieldName("name"); name != nil {
		return name
	}
	for i := 0; i < int(el.NamedChildCount()); i++ {
		switch c := el.NamedChild(i); c.Type() {
		case "identifier", "member_expression", "nested_identifier", "jsx_namespace_name":
			return c
		}
	}
	return nil
}

func isLowerStart(s string) bool {
	return s != "" && s[0] >= 'a' && s[0] <= 'z'
}

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

func (e *emitter) props(el *sitter.Node) string {
	var fields []string
	for i := 0; i < int(el.NamedChildCount()); i++ {
		c := el.NamedChild(i)
		switch c.Type() {
		case "jsx_expression":
			if s := e.jsxExpression(c); s != "" {
				fields = append(fields, s)
			}
		case "jsx_attribute":
			fields = append(fields, e.attribute(c))
		}
	}
	if len(fields) == 0 {
		return "null"
	}
	return "{ " + strings.Join(fields, ", ") + " }"
}

func (e *emitter) attribute(n *sitter.Node) string {
	if n.NamedChildCount() == 0 {
		return ""
	}
	key := n.NamedChild(0).Content(e.src)
	if !identRe.MatchString(key) {
		key = jsString(key)
	}
	val := "true"
	if n.NamedChildCount() > 1 {
		v := n.NamedChild(1)
		switch v.Type() {
		case "string":
			val = jsString(html.UnescapeString(e.stringValue(v)))
		case "jsx_expression":
			if s := e.jsxExpression(v); s != "" {
				val = s
			}
		default:
			val = e.emit(v)
		}
	}
	return key + ": " + val
}

// jsxText applies the JSX whitespace rules: lines are trimmed, blank lines
// dropped, and the remaining lines joined with single spaces. Entities are
// decoded.
func jsxText(raw []byte) string {
	lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	lastNonEmpty := -1
	for i, line := range lines {
		if strings.TrimLeft(line, " \t") != "" {
			lastNonEmpty = i
		}
	}
	var b strings.Builder
	for i, line := range lines {
		line = strings.ReplaceAll(line, "\t", " ")
		if i > 0 {
			line = strings.TrimLeft(line, " ")
		}
		if i < len(lines)-1 {
			line = strings.TrimRight(line, " ")
		}
		if line == "" {
			continue
		}
		if i != lastNonEmpty {
			line += " "
		}
		b.WriteString(line)
	}
	return html.UnescapeString(b.String())
}
