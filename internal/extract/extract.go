// Package extract finds the blob identifiers a document export still
// references.
//
// An export is a loosely structured tree: {"pages": [{"lines": [{"text": ...}]}]}.
// Every level may be missing or malformed. The walk never fails; nodes that
// do not have the expected shape contribute no references. Each text value is
// scanned lexically for identifier-shaped substrings, whatever markup
// surrounds them (bracket links, bare URLs, relative paths, plain text).
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"

	"github.com/tidwall/gjson"
)

// IdentifierPattern matches a canonical UUID followed by a dot and an
// alphanumeric extension. Hex digits match in either case.
var IdentifierPattern = regexp.MustCompile(
	`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\.[A-Za-z0-9]+`,
)

// MaxNestingDepth bounds array and object nesting. gjson validates and walks
// recursively, so unbounded nesting would exhaust the goroutine stack.
const MaxNestingDepth = 1000

// ParseError reports a payload that is not a JSON document at all.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid document export: %s", e.Reason)
}

// Document is a validated JSON export held in memory.
type Document struct {
	root gjson.Result
}

// Parse validates payload as JSON. Only an empty or syntactically invalid
// payload is an error; any well-formed JSON value is a Document.
func Parse(payload []byte) (Document, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return Document{}, &ParseError{Reason: "payload is empty"}
	}
	if depth := nestingDepth(payload); depth > MaxNestingDepth {
		return Document{}, &ParseError{Reason: fmt.Sprintf("payload nests deeper than %d levels", MaxNestingDepth)}
	}
	if !gjson.ValidBytes(payload) {
		return Document{}, &ParseError{Reason: "payload is not valid JSON"}
	}
	return Document{root: gjson.ParseBytes(payload)}, nil
}

// nestingDepth returns the deepest bracket nesting in payload, ignoring
// brackets inside strings. It stops counting once MaxNestingDepth is passed.
func nestingDepth(payload []byte) int {
	depth, deepest := 0, 0
	inString, escaped := false, false
	for _, b := range payload {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '[', '{':
			depth++
			if depth > deepest {
				deepest = depth
				if deepest > MaxNestingDepth {
					return deepest
				}
			}
		case ']', '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return deepest
}

// MustParse is Parse for literals known to be valid.
func MustParse(payload string) Document {
	doc, err := Parse([]byte(payload))
	if err != nil {
		panic(err)
	}
	return doc
}

// ReferenceSet is a set of identifiers. Matching is exact; identifiers that
// differ only in case are distinct entries.
type ReferenceSet map[string]struct{}

// Add inserts id.
func (s ReferenceSet) Add(id string) {
	s[id] = struct{}{}
}

// Has reports whether id is referenced.
func (s ReferenceSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of distinct identifiers.
func (s ReferenceSet) Len() int {
	return len(s)
}

// Sorted returns the identifiers in lexical order.
func (s ReferenceSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Extract returns every identifier mentioned in a text field of doc. When an
// object repeats a key, every occurrence is walked, so a reference is kept if
// any reading of the document contains it.
func Extract(doc Document) ReferenceSet {
	refs := ReferenceSet{}
	for _, pages := range fields(doc.root, "pages") {
		if !pages.IsArray() {
			continue
		}
		pages.ForEach(func(_, page gjson.Result) bool {
			for _, lines := range fields(page, "lines") {
				if !lines.IsArray() {
					continue
				}
				lines.ForEach(func(_, line gjson.Result) bool {
					for _, text := range fields(line, "text") {
						if text.Type != gjson.String {
							continue
						}
						for _, id := range Match(text.Str) {
							refs.Add(id)
						}
					}
					return true
				})
			}
			return true
		})
	}
	return refs
}

// fields returns every value stored under key in obj, in document order.
// gjson's Get only sees the first of repeated keys.
func fields(obj gjson.Result, key string) []gjson.Result {
	if !obj.IsObject() {
		return nil
	}
	var out []gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.Str == key {
			out = append(out, v)
		}
		return true
	})
	return out
}

// Match returns all non-overlapping identifier-shaped substrings of text.
func Match(text string) []string {
	return IdentifierPattern.FindAllString(text, -1)
}
