// Package fieldname handles hierarchical widget names such as
// "topmostSubform[0].Page1[0].f1_01[0]", where only the leaf is meaningful
// to a human and documents may expose either the qualified or the short form.
package fieldname

import (
	"sort"
	"strings"
)

// Separator divides the segments of a qualified field name.
const Separator = "."

// Leaf returns the substring after the final separator, or name itself
// when it is not qualified.
func Leaf(name string) string {
	if i := strings.LastIndex(name, Separator); i >= 0 {
		return name[i+len(Separator):]
	}
	return name
}

// Parent returns the prefix up to the final separator.
func Parent(name string) (string, bool) {
	if i := strings.LastIndex(name, Separator); i >= 0 {
		return name[:i], true
	}
	return "", false
}

// IsQualified reports whether name contains a hierarchy separator.
func IsQualified(name string) bool {
	return strings.Contains(name, Separator)
}

// NameSet is the set of field names a document actually exposes.
type NameSet map[string]struct{}

// NewNameSet builds a NameSet from the given names.
func NewNameSet(names ...string) NameSet {
	set := make(NameSet, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// Has reports whether name is in the set.
func (s NameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order.
func (s NameSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Index maps every id prefix to the ids below it. It is built once per id set
// so descendant lookups do not walk the whole namespace.
type Index struct {
	descendants map[string][]string
}

// NewIndex builds an Index over ids. Every proper prefix ending right before
// a separator is an ancestor, whether or not it is itself one of the ids.
func NewIndex(ids []string) *Index {
	idx := &Index{descendants: make(map[string][]string)}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		for i := 0; i < len(id); i++ {
			if strings.HasPrefix(id[i:], Separator) && i > 0 {
				prefix := id[:i]
				idx.descendants[prefix] = append(idx.descendants[prefix], id)
			}
		}
	}
	for prefix := range idx.descendants {
		sort.Strings(idx.descendants[prefix])
	}
	return idx
}

// Descendants returns the ids that start with id followed by a separator,
// sorted. The returned slice must not be modified.
func (idx *Index) Descendants(id string) []string {
	return idx.descendants[id]
}
