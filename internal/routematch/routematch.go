// Package routematch holds the path handling shared by route registration and
// middleware matching. Canonical route paths use ":name" segments for
// parameters and a trailing "*" for a catch-all.
package routematch

import (
	"strings"
)

// Join joins path segments into a canonical path: a leading slash, no
// duplicate or trailing slashes. Joining nothing yields "/".
func Join(parts ...string) string {
	var segs []string
	for _, p := range parts {
		for _, s := range strings.Split(p, "/") {
			if s != "" {
				segs = append(segs, s)
			}
		}
	}
	return "/" + strings.Join(segs, "/")
}

// Segments splits a canonical path into its non-empty segments.
func Segments(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// ParamNames returns the ":name" parameter names of path, in order.
func ParamNames(path string) []string {
	var names []string
	for _, s := range Segments(path) {
		if strings.HasPrefix(s, ":") && len(s) > 1 {
			names = append(names, s[1:])
		}
	}
	return names
}

// ToChi converts a canonical path to chi syntax.
func ToChi(path string) string {
	return convert(path, func(name string) string { return "{" + name + "}" }, "*")
}

// ToGin converts a canonical path to gin syntax.
func ToGin(path string) string {
	return convert(path, func(name string) string { return ":" + name }, "*wildcard")
}

// ToFiber converts a canonical path to fiber syntax.
func ToFiber(path string) string {
	return convert(path, func(name string) string { return ":" + name }, "*")
}

// HasWildcard reports whether path ends in a catch-all segment.
func HasWildcard(path string) bool {
	segs := Segments(path)
	return len(segs) > 0 && segs[len(segs)-1] == "*"
}

// ToEcho converts a canonical path to echo syntax.
func ToEcho(path string) string {
	return convert(path, func(name string) string { return ":" + name }, "*")
}

func convert(path string, param func(string) string, wildcard string) string {
	segs := Segments(path)
	for i, s := range segs {
		switch {
		case s == "*":
			segs[i] = wildcard
		case strings.HasPrefix(s, ":") && len(s) > 1:
			segs[i] = param(s[1:])
		}
	}
	return "/" + strings.Join(segs, "/")
}

// Matcher tests request paths (and optionally methods) against one pattern.
type Matcher struct {
	method string
	all    bool
	segs   []string
	prefix bool
}

// Compile compiles pattern. It accepts "*" (every path), an exact path,
// a path with ":name" segments, and a path ending in "/*" which matches the
// path itself and everything below it. An empty method matches every method.
func Compile(pattern, method string) *Matcher {
	m := &Matcher{method: strings.ToUpper(method)}
	if m.method == "ALL" {
		m.method = ""
	}

	trimmed := strings.TrimSpace(pattern)
	if trimmed == "*" || trimmed == "/*" || trimmed == "(.*)" {
		m.all = true
		return m
	}

	segs := Segments(trimmed)
	if n := len(segs); n > 0 && (segs[n-1] == "*" || segs[n-1] == "(.*)") {
		m.prefix = true
		segs = segs[:n-1]
	}
	m.segs = segs
	return m
}

// Match reports whether method and path match.
func (m *Matcher) Match(method, path string) bool {
	if m.method != "" && !strings.EqualFold(m.method, method) {
		return false
	}
	if m.all {
		return true
	}

	segs := Segments(path)
	if len(segs) < len(m.segs) {
		return false
	}
	if !m.prefix && len(segs) != len(m.segs) {
		return false
	}

	for i, want := range m.segs {
		if strings.HasPrefix(want, ":") {
			continue
		}
		if want != segs[i] {
			return false
		}
	}
	return true
}

// String returns the pattern in canonical form.
func (m *Matcher) String() string {
	var b strings.Builder
	if m.method != "" {
		b.WriteString(m.method)
		b.WriteByte(' ')
	}
	switch {
	case m.all:
		b.WriteString("*")
	case m.prefix:
		b.WriteString(Join(append(append([]string(nil), m.segs...), "*")...))
	default:
		b.WriteString(Join(m.segs...))
	}
	return b.String()
}
