package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// nodeKey identifies a node independent of the *sitter.Node wrapper.
type nodeKey struct {
	start, end uint32
	typ        string
}

func keyOf(n *sitter.Node) nodeKey {
	return nodeKey{start: n.StartByte(), end: n.EndByte(), typ: n.Type()}
}

// importRecord is one rewritten specifier.
type importRecord struct {
	Spec   string
	Target string
	Local  bool
}

// emitter rewrites one parsed file. Output text is the concatenation of
// the source gaps between children and the emitted children, so anything
// not rewritten is copied verbatim.
type emitter struct {
	path  string
	src   []byte
	typed bool
	res   *resolver
	refs  Refs
	opts  *Options

	subst    map[nodeKey]string
	collect  bool
	used     map[string]bool
	bound    map[string]bool
	usesJSX  bool
	diags    []Diagnostic
	imports  []importRecord
	styles   []string
	external []string
}

func newEmitter(p string, src []byte, typed bool, res *resolver, refs Refs, opts *Options) *emitter {
	return &emitter{
		path:  p,
		src:   src,
		typed: typed,
		res:   res,
		refs:  refs,
		opts:  opts,
		subst: map[nodeKey]string{},
		used:  map[string]bool{},
		bound: map[string]bool{},
	}
}

// erased lists TypeScript-only node types that produce no output.
var erased = map[string]bool{
	"type_annotation":           true,
	"type_arguments":            true,
	"type_parameters":           true,
	"interface_declaration":     true,
	"type_alias_declaration":    true,
	"ambient_declaration":       true,
	"function_signature":        true,
	"implements_clause":         true,
	"accessibility_modifier":    true,
	"override_modifier":         true,
	"type_predicate_annotation": true,
	"asserts_annotation":        true,
	"method_signature":          true,
	"abstract_method_signature": true,
	"index_signature":           true,
}

// unwrapped lists expressions whose first named child is the runtime value.
var unwrapped = map[string]bool{
	"as_expression":            true,
	"satisfies_expression":     true,
	"non_null_expression":      true,
	"instantiation_expression": true,
}

func (e *emitter) emit(n *sitter.Node) string {
	if s, ok := e.subst[keyOf(n)]; ok {
		return s
	}
	typ := n.Type()
	if e.typed {
		switch {
		case erased[typ]:
			return ""
		case unwrapped[typ]:
			return e.emit(n.NamedChild(0))
		case typ == "type_assertion":
			return e.emit(n.NamedChild(int(n.NamedChildCount()) - 1))
		case typ == "enum_declaration":
			return e.enum(n)
		case typ == "public_field_definition":
			if hasToken(n, "declare") || hasToken(n, "abstract") {
				return ""
			}
		case typ == "method_definition":
			return e.method(n)
		case typ == "export_clause":
			return e.exportClause(n)
		}
	}
	switch typ {
	case "program":
		return e.program(n)
	case "import_statement":
		return e.importStatement(n)
	case "export_statement":
		return e.exportStatement(n)
	case "call_expression":
		e.dynamicImport(n)
	case "jsx_element", "jsx_self_closing_element":
		return e.jsx(n)
	}
	if n.ChildCount() == 0 {
		text := n.Content(e.src)
		if e.collect && (typ == "identifier" || typ == "shorthand_property_identifier") {
			e.used[text] = true
		}
		return text
	}
	return e.children(n, nil)
}

// children emits n with each child rewritten. override, when set, may
// replace the emission of individual children.
func (e *emitter) children(n *sitter.Node, override func(c *sitter.Node) (string, bool)) string {
	var b strings.Builder
	cursor := n.StartByte()
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		b.Write(e.src[cursor:c.StartByte()])
		cursor = c.EndByte()
		if override != nil {
			if s, ok := override(c); ok {
				b.WriteString(s)
				continue
			}
		}
		if e.typed && !c.IsNamed() && erasedToken(n.Type(), c.Type()) {
			continue
		}
		b.WriteString(e.emit(c))
	}
	b.Write(e.src[cursor:n.EndByte()])
	return b.String()
}

// erasedToken reports whether an anonymous keyword or punctuation token is
// TypeScript-only in the given parent.
func erasedToken(parent, tok string) bool {
	switch tok {
	case "?":
		switch parent {
		case "optional_parameter", "public_field_definition", "method_definition":
			return true
		}
	case "!":
		return parent == "public_field_definition"
	case "readonly", "declare", "abstract", "override":
		switch parent {
		case "public_field_definition", "required_parameter", "optional_parameter",
			"method_definition", "abstract_class_declaration":
			return true
		}
	}
	return false
}

func hasToken(n *sitter.Node, tok string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if !c.IsNamed() && c.Type() == tok {
			return true
		}
	}
	return false
}

// program defers import statements until every other statement has been
// emitted, so import elision knows which bindings are used as values.
func (e *emitter) program(n *sitter.Node) string {
	parts := make([]string, n.ChildCount())
	var deferred []int
	e.collect = true
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "import_statement" {
			deferred = append(deferred, i)
			continue
		}
		parts[i] = e.emit(c)
	}
	e.collect = false
	for _, i := range deferred {
		parts[i] = e.emit(n.Child(i))
	}

	var b strings.Builder
	if e.usesJSX {
		if root := factoryRoot(e.opts.Factory); !e.bound[root] {
			fmt.Fprintf(&b, "import %s from %s;\n", root, jsString(e.rewrite(e.opts.FactoryImport, nil)))
		}
	}
	cursor := n.StartByte()
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		b.Write(e.src[cursor:c.StartByte()])
		b.WriteString(parts[i])
		cursor = c.EndByte()
	}
	b.Write(e.src[cursor:n.EndByte()])
	return b.String()
}

func factoryRoot(factory string) string {
	root, _, _ := strings.Cut(factory, ".")
	return root
}

// sourceNode returns the module specifier string of an import or export.
func sourceNode(n *sitter.Node) *sitter.Node {
	if s := n.ChildByFieldName("source"); s != nil {
		return s
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() != "from_clause" {
			continue
		}
		if s := c.ChildByFieldName("source"); s != nil {
			return s
		}
		for j := 0; j < int(c.NamedChildCount()); j++ {
			if s := c.NamedChild(j); s.Type() == "string" {
				return s
			}
		}
	}
	return nil
}

func (e *emitter) stringValue(n *sitter.Node) string {
	text := n.Content(e.src)
	if len(text) >= 2 {
		return text[1 : len(text)-1]
	}
	return text
}

func (e *emitter) importStatement(n *sitter.Node) string {
	src := sourceNode(n)
	if src == nil {
		return n.Content(e.src)
	}
	spec := e.stringValue(src)
	if isStylesheet(spec) {
		e.stylesheet(spec, src)
		return ""
	}
	e.subst[keyOf(src)] = jsString(e.rewrite(spec, src))
	if e.typed && hasToken(n, "type") {
		return ""
	}

	var clause *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "import_clause" {
			clause = c
		}
	}
	if clause == nil {
		return e.children(n, nil)
	}
	text, keep := e.importClause(clause)
	if !keep {
		return ""
	}
	e.subst[keyOf(clause)] = text
	return e.children(n, nil)
}

// importClause records the bindings of an import. In typed files bindings
// never used as values are elided, and an import left with no bindings is
// dropped entirely.
func (e *emitter) importClause(clause *sitter.Node) (string, bool) {
	var parts []string
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		c := clause.NamedChild(i)
		switch c.Type() {
		case "identifier":
			name := c.Content(e.src)
			e.bound[name] = true
			if !e.typed || e.used[name] {
				parts = append(parts, name)
			}
		case "namespace_import":
			text := c.Content(e.src)
			var name string
			if id := lastNamed(c, "identifier"); id != nil {
				name = id.Content(e.src)
			}
			e.bound[name] = true
			if !e.typed || e.used[name] {
				parts = append(parts, text)
			}
		case "named_imports":
			var specs []string
			for j := 0; j < int(c.NamedChildCount()); j++ {
				s := c.NamedChild(j)
				if s.Type() != "import_specifier" {
					continue
				}
				local := s.ChildByFieldName("alias")
				if local == nil {
					local = s.ChildByFieldName("name")
				}
				if local == nil {
					continue
				}
				name := local.Content(e.src)
				if e.typed && hasToken(s, "type") {
					continue
				}
				e.bound[name] = true
				if !e.typed || e.used[name] {
					specs = append(specs, s.Content(e.src))
				}
			}
			if len(specs) > 0 || !e.typed {
				parts = append(parts, "{ "+strings.Join(specs, ", ")+" }")
			}
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, ", "), true
}

func lastNamed(n *sitter.Node, typ string) *sitter.Node {
	var found *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == typ {
			found = c
		}
	}
	return found
}

// typeOnly lists declarations that vanish together with their export.
var typeOnly = map[string]bool{
	"interface_declaration":  true,
	"type_alias_declaration": true,
	"ambient_declaration":    true,
	"function_signature":     true,
}

func (e *emitter) exportStatement(n *sitter.Node) string {
	src := sourceNode(n)
	if src != nil {
		e.subst[keyOf(src)] = jsString(e.rewrite(e.stringValue(src), src))
	}
	if e.typed {
		if hasToken(n, "type") {
			return ""
		}
		if decl := n.ChildByFieldName("declaration"); decl != nil && typeOnly[decl.Type()] {
			return ""
		}
	}
	return e.children(n, nil)
}

// exportClause drops "type" specifiers from export lists.
func (e *emitter) exportClause(n *sitter.Node) string {
	var specs []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		s := n.NamedChild(i)
		if s.Type() != "export_specifier" || hasToken(s, "type") {
			continue
		}
		specs = append(specs, e.emit(s))
	}
	return "{ " + strings.Join(specs, ", ") + " }"
}

// dynamicImport rewrites import("literal"); computed specifiers are left
// for the host to resolve at run time.
func (e *emitter) dynamicImport(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != "import" {
		return
	}
	args := n.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return
	}
	if arg := args.NamedChild(0); arg.Type() == "string" {
		e.subst[keyOf(arg)] = jsString(e.rewrite(e.stringValue(arg), arg))
	}
}

// rewrite applies the specifier policies and returns the new specifier.
// at is used for diagnostic positions and may be nil.
func (e *emitter) rewrite(spec string, at *sitter.Node) string {
	switch e.res.classify(spec) {
	case specURL:
		return spec
	case specBare:
		url := e.res.bareURL(spec)
		e.imports = append(e.imports, importRecord{Spec: spec, Target: url})
		return url
	}
	target, ok := e.res.resolveLocal(e.path, spec)
	if !ok {
		e.notFound(spec, at)
		return spec
	}
	ref := e.refs.Ref(target)
	e.imports = append(e.imports, importRecord{Spec: spec, Target: ref, Local: true})
	return ref
}

func (e *emitter) stylesheet(spec string, at *sitter.Node) {
	switch e.res.classify(spec) {
	case specURL:
		e.external = append(e.external, spec)
	case specBare:
		e.external = append(e.external, e.res.bareURL(spec))
	default:
		target := e.res.target(e.path, spec)
		if e.res.files[target] != FamilyStylesheet {
			e.notFound(spec, at)
			return
		}
		e.styles = append(e.styles, target)
	}
}

func (e *emitter) notFound(spec string, at *sitter.Node) {
	d := Diagnostic{
		Path:    e.path,
		Kind:    ModuleNotFound,
		Message: fmt.Sprintf("cannot resolve %q from %s", spec, e.path),
	}
	if at != nil {
		pt := at.StartPoint()
		d.Line, d.Column = int(pt.Row)+1, int(pt.Column)+1
	}
	e.diags = append(e.diags, d)
}

// enum lowers an enum declaration to a frozen object. Numeric members
// auto-increment from the previous numeric value.
func (e *emitter) enum(n *sitter.Node) string {
	name := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if name == nil || body == nil {
		return ""
	}
	var members []string
	next, known := 0.0, true
	for i := 0; i < int(body.NamedChildCount()); i++ {
		c := body.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		key, value := c, (*sitter.Node)(nil)
		if c.Type() == "enum_assignment" {
			key, value = c.ChildByFieldName("name"), c.ChildByFieldName("value")
			if key == nil {
				continue
			}
		}
		var val string
		switch {
		case value != nil:
			val = e.emit(value)
			if f, err := strconv.ParseFloat(value.Content(e.src), 64); err == nil && value.Type() == "number" {
				next, known = f+1, true
			} else {
				known = false
			}
		case known:
			val = strconv.FormatFloat(next, 'f', -1, 64)
			next++
		default:
			val = "undefined"
		}
		members = append(members, key.Content(e.src)+": "+val)
	}
	return fmt.Sprintf("const %s = Object.freeze({ %s });", name.Content(e.src), strings.Join(members, ", "))
}

// method turns constructor parameter properties into assignments placed
// after the super call, or at the top of the body when there is none.
func (e *emitter) method(n *sitter.Node) string {
	name := n.ChildByFieldName("name")
	params := n.ChildByFieldName("parameters")
	body := n.ChildByFieldName("body")
	if name == nil || params == nil || body == nil || name.Content(e.src) != "constructor" {
		return e.children(n, nil)
	}
	var assigns []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p.Type() != "required_parameter" && p.Type() != "optional_parameter" {
			continue
		}
		if !isParameterProperty(p) {
			continue
		}
		if pat := p.ChildByFieldName("pattern"); pat != nil && pat.Type() == "identifier" {
			id := pat.Content(e.src)
			assigns = append(assigns, fmt.Sprintf("this.%s = %s;", id, id))
		}
	}
	if len(assigns) == 0 {
		return e.children(n, nil)
	}
	inject := " " + strings.Join(assigns, " ")

	var super *sitter.Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		c := body.NamedChild(i)
		if c.Type() == "expression_statement" && strings.HasPrefix(c.Content(e.src), "super(") {
			super = c
			break
		}
	}
	e.subst[keyOf(body)] = e.children(body, func(c *sitter.Node) (string, bool) {
		switch {
		case super != nil && keyOf(c) == keyOf(super):
			return e.emit(c) + inject, true
		case super == nil && c.Type() == "{":
			return "{" + inject, true
		}
		return "", false
	})
	return e.children(n, nil)
}

func isParameterProperty(p *sitter.Node) bool {
	for i := 0; i < int(p.ChildCount()); i++ {
		switch c := p.Child(i); c.Type() {
		case "accessibility_modifier", "override_modifier":
			return true
		case "readonly":
			return !c.IsNamed()
		}
	}
	return false
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(b.String(), "\n")
}
