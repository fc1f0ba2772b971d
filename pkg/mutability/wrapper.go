package mutability

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotMapped is returned for a guest interface the table does not know.
var ErrNotMapped = errors.New("not a mapped collection interface")

const (
	javaLangObject = "java.lang.Object"
	javaUtilMap    = "java.util.Map"
	javaUtilList   = "java.util.List"
	mapEntry       = "java.util.Map.Entry"
)

// Param is a method parameter. Types are written as in Java source.
type Param struct {
	Name string
	Type string
}

// Method is a member signature.
type Method struct {
	Name   string
	Params []Param
	Return string
}

func (m Method) String() string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.Type + " " + p.Name
	}
	return fmt.Sprintf("%s %s(%s)", m.Return, m.Name, strings.Join(params, ", "))
}

// HostClass is a host collection interface and its methods.
type HostClass struct {
	Name           string
	TypeParameters []string
	Methods        []Method
}

// Member is a method of a wrapper. A final member bridges the host method;
// the others are abstract and carry the guest signature.
type Member struct {
	Method
	Final bool
	// Base is the host method the member was derived from.
	Base Method
}

func (m Member) String() string {
	if m.Final {
		return "final " + m.Method.String()
	}
	return "abstract " + m.Method.String()
}

// Wrapper is a host interface seen as a guest read-only or mutable interface.
type Wrapper struct {
	FqName         string
	Host           string
	Mutable        bool
	TypeParameters []string
	// Supers lists the wrappers of the guest supertypes, then the host.
	Supers  []string
	Methods []Member
}

// Name returns the simple name of the guest interface.
func (w *Wrapper) Name() string {
	return w.FqName[strings.LastIndex(w.FqName, ".")+1:]
}

// MethodsNamed returns the members called name.
func (w *Wrapper) MethodsNamed(name string) []Member {
	var out []Member
	for _, m := range w.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

func (w *Wrapper) String() string {
	tp := ""
	if len(w.TypeParameters) > 0 {
		tp = "<" + strings.Join(w.TypeParameters, ", ") + ">"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "interface %s%s", w.FqName, tp)
	if len(w.Supers) > 0 {
		supers := make([]string, len(w.Supers))
		for i, s := range w.Supers {
			supers[i] = s + tp
		}
		fmt.Fprintf(&sb, " extends %s", strings.Join(supers, ", "))
	}
	sb.WriteString(" {\n")
	for _, m := range w.Methods {
		fmt.Fprintf(&sb, "  %s;\n", m)
	}
	sb.WriteString("}\n")
	return sb.String()
}

// Wrap returns host seen as the guest interface guest. Wrappers are built
// once per host and mutability.
func (t *Table) Wrap(host *HostClass, guest string) (*Wrapper, error) {
	m, mutable, ok := t.Lookup(guest)
	if !ok {
		return nil, fmt.Errorf("%s: %w", guest, ErrNotMapped)
	}
	if host.Name != m.Host {
		return nil, fmt.Errorf("%s is a view of %s, not %s", guest, m.Host, host.Name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	key := wrapperKey{host.Name, mutable}
	if w, ok := t.wrappers[key]; ok {
		return w, nil
	}
	w, err := t.build(host, m, guest, mutable)
	if err != nil {
		return nil, err
	}
	t.wrappers[key] = w
	return w, nil
}

type builder struct {
	t     *Table
	host  *HostClass
	w     *Wrapper
	subst map[string]string
}

func (t *Table) build(host *HostClass, m *Mapping, guest string, mutable bool) (*Wrapper, error) {
	typeParams := host.TypeParameters
	if len(typeParams) == 0 {
		typeParams = m.TypeParameters
	}
	b := &builder{
		t:     t,
		host:  host,
		w:     &Wrapper{FqName: guest, Host: host.Name, Mutable: mutable},
		subst: make(map[string]string),
	}
	for _, p := range typeParams {
		b.w.TypeParameters = append(b.w.TypeParameters, "K"+p)
		b.subst[p] = "K" + p
	}

	for _, s := range t.Interfaces[guest].Supers {
		if _, _, ok := t.Lookup(s); ok {
			b.w.Supers = append(b.w.Supers, s)
		}
	}
	b.w.Supers = append(b.w.Supers, host.Name)

	for _, method := range host.Methods {
		members, err := b.methodWrappers(method)
		if err != nil {
			return nil, err
		}
		b.w.Methods = append(b.w.Methods, members...)
	}
	extra, err := b.additionalMethods()
	if err != nil {
		return nil, err
	}
	b.w.Methods = append(b.w.Methods, extra...)
	return b.w, nil
}

func (b *builder) methodWrappers(method Method) ([]Member, error) {
	if b.host.Name == mapEntry {
		if !b.w.Mutable && method.Name == "setValue" {
			return []Member{b.finalBridge(method)}, nil
		}
		return nil, nil
	}
	if getter, ok := b.t.Getters[method.Name]; ok {
		abstract := b.wrap(method, getter, "", nil)
		return []Member{b.finalBridge(method), abstract}, nil
	}
	if !b.t.HasMember(b.w.FqName, method.Name) {
		return []Member{b.finalBridge(method)}, nil
	}
	return b.specializedSignature(method)
}

func (b *builder) specializedSignature(method Method) ([]Member, error) {
	if !b.t.specialized[method.Name] {
		return nil, nil
	}
	if b.host.Name == javaUtilMap {
		sig := b.mapSignature(method)
		if sig == nil {
			return nil, nil
		}
		return []Member{b.finalBridge(method), b.wrap(method, method.Name, "", sig)}, nil
	}
	if method.Name == "remove" && len(method.Params) == 1 && method.Params[0].Type == "int" {
		return []Member{b.finalBridge(method)}, nil
	}
	elem, err := b.singleTypeParameter()
	if err != nil {
		return nil, err
	}
	return []Member{b.finalBridge(method), b.wrap(method, method.Name, elem, nil)}, nil
}

// additionalMethods adds removeAt(int) to a mutable list.
func (b *builder) additionalMethods() ([]Member, error) {
	if b.host.Name != javaUtilList || !b.w.Mutable {
		return nil, nil
	}
	for _, m := range b.host.Methods {
		if m.Name != "remove" {
			continue
		}
		elem, err := b.singleTypeParameter()
		if err != nil {
			return nil, err
		}
		return []Member{b.wrap(m, "removeAt", "", &signature{params: []string{"int"}, ret: elem})}, nil
	}
	return nil, nil
}

type signature struct {
	params []string
	ret    string
}

func (b *builder) mapSignature(method Method) *signature {
	if len(b.w.TypeParameters) != 2 {
		return nil
	}
	k, v := b.w.TypeParameters[0], b.w.TypeParameters[1]
	switch method.Name {
	case "get":
		return &signature{[]string{k}, v}
	case "getOrDefault":
		return &signature{[]string{k, v}, v}
	case "containsKey":
		return &signature{[]string{k}, "boolean"}
	case "containsValue":
		return &signature{[]string{v}, "boolean"}
	case "remove":
		switch len(method.Params) {
		case 1:
			return &signature{[]string{k}, v}
		case 2:
			return &signature{[]string{k, v}, "boolean"}
		}
	}
	return nil
}

func (b *builder) singleTypeParameter() (string, error) {
	if len(b.w.TypeParameters) != 1 {
		return "", fmt.Errorf("%s: want one type parameter, have %d", b.w.FqName, len(b.w.TypeParameters))
	}
	return b.w.TypeParameters[0], nil
}

func (b *builder) finalBridge(method Method) Member {
	m := b.wrap(method, method.Name, "", nil)
	m.Final = true
	return m
}

// wrap derives a member from a host method. With sig nil the host types are
// rewritten to the wrapper's type parameters, and Object becomes objectWith
// when that is set.
func (b *builder) wrap(method Method, name, objectWith string, sig *signature) Member {
	out := Member{Method: Method{Name: name}, Base: method}
	for i, p := range method.Params {
		pn := p.Name
		if pn == "" {
			pn = "it"
		}
		var t string
		if sig != nil && i < len(sig.params) {
			t = sig.params[i]
		} else {
			t = b.substitute(p.Type, objectWith)
		}
		out.Params = append(out.Params, Param{Name: pn, Type: t})
	}
	if sig != nil {
		out.Return = sig.ret
	} else {
		out.Return = b.substitute(method.Return, objectWith)
	}
	return out
}

func (b *builder) substitute(t, objectWith string) string {
	s := substituteTypeVariables(t, b.subst)
	if s == javaLangObject && objectWith != "" {
		return objectWith
	}
	return s
}

// substituteTypeVariables replaces every identifier of t found in subst.
func substituteTypeVariables(t string, subst map[string]string) string {
	var sb strings.Builder
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		id := t[start:end]
		if r, ok := subst[id]; ok {
			id = r
		}
		sb.WriteString(id)
		start = -1
	}
	for i, c := range t {
		if c == '.' || c == '_' || c == '$' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
		sb.WriteRune(c)
	}
	flush(len(t))
	return sb.String()
}
