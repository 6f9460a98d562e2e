// Package version implements Maven version ordering and SNAPSHOT version
// shapes.
package version

import (
	"slices"
	"strings"
)

// Qualifier order. Unknown qualifiers sort after "sp", lexically among
// themselves. The empty qualifier is a release.
var qualifiers = []string{"alpha", "beta", "milestone", "rc", "snapshot", "", "sp"}

var qualifierAliases = map[string]string{
	"ga":      "",
	"final":   "",
	"release": "",
	"cr":      "rc",
}

var releaseIndex = comparableQualifier("")

func comparableQualifier(q string) string {
	if i := slices.Index(qualifiers, q); i >= 0 {
		return string(rune('0' + i))
	}
	return string(rune('0'+len(qualifiers))) + "-" + q
}

// item is one component of a parsed version. A nil item stands for a
// missing component when versions of different length are compared.
type item interface {
	compare(other item) int
	isNull() bool
	String() string
}

type intItem string

func newIntItem(digits string) intItem {
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		digits = "0"
	}
	return intItem(digits)
}

func (i intItem) isNull() bool { return i == "0" }

func (i intItem) String() string { return string(i) }

func (i intItem) compare(other item) int {
	switch o := other.(type) {
	case nil:
		if i.isNull() {
			return 0
		}
		return 1
	case intItem:
		if len(i) != len(o) {
			if len(i) < len(o) {
				return -1
			}
			return 1
		}
		return strings.Compare(string(i), string(o))
	default:
		// numbers sort after qualifiers and nested lists
		return 1
	}
}

type stringItem string

func newStringItem(value string, followedByDigit bool) stringItem {
	if followedByDigit && len(value) == 1 {
		switch value {
		case "a":
			value = "alpha"
		case "b":
			value = "beta"
		case "m":
			value = "milestone"
		}
	}
	if alias, ok := qualifierAliases[value]; ok {
		value = alias
	}
	return stringItem(value)
}

func (s stringItem) isNull() bool { return comparableQualifier(string(s)) == releaseIndex }

func (s stringItem) String() string { return string(s) }

func (s stringItem) compare(other item) int {
	switch o := other.(type) {
	case nil:
		return strings.Compare(comparableQualifier(string(s)), releaseIndex)
	case stringItem:
		return strings.Compare(comparableQualifier(string(s)), comparableQualifier(string(o)))
	default:
		return -1
	}
}

type listItem struct {
	items []item
}

func (l *listItem) add(it item) {
	l.items = append(l.items, it)
}

func (l *listItem) isNull() bool { return len(l.items) == 0 }

// normalize drops trailing null items, looking through nested lists.
func (l *listItem) normalize() {
	for i := len(l.items) - 1; i >= 0; i-- {
		it := l.items[i]
		if it.isNull() {
			l.items = append(l.items[:i], l.items[i+1:]...)
			continue
		}
		if _, nested := it.(*listItem); !nested {
			break
		}
	}
}

func (l *listItem) String() string {
	var b strings.Builder
	for i, it := range l.items {
		if i > 0 {
			if _, nested := it.(*listItem); nested {
				b.WriteByte('-')
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteString(it.String())
	}
	return b.String()
}

func (l *listItem) compare(other item) int {
	switch o := other.(type) {
	case nil:
		if len(l.items) == 0 {
			return 0
		}
		return l.items[0].compare(nil)
	case intItem:
		return -1
	case stringItem:
		return 1
	case *listItem:
		for i := 0; i < len(l.items) || i < len(o.items); i++ {
			var left, right item
			if i < len(l.items) {
				left = l.items[i]
			}
			if i < len(o.items) {
				right = o.items[i]
			}
			var result int
			if left == nil {
				result = -right.compare(nil)
			} else {
				result = left.compare(right)
			}
			if result != 0 {
				return result
			}
		}
		return 0
	default:
		return 0
	}
}

// Version is a parsed Maven version.
type Version struct {
	raw   string
	items *listItem
}

// Parse parses a version string. Every string is a valid version.
func Parse(v string) *Version {
	return &Version{raw: v, items: parseItems(v)}
}

func parseItems(raw string) *listItem {
	v := strings.ToLower(raw)
	root := &listItem{}
	list := root
	stack := []*listItem{root}

	push := func() {
		next := &listItem{}
		list.add(next)
		list = next
		stack = append(stack, next)
	}

	isDigit := false
	start := 0
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c == '.':
			if i == start {
				list.add(intItem("0"))
			} else {
				list.add(parseItem(isDigit, v[start:i]))
			}
			start = i + 1
		case c == '-':
			if i == start {
				list.add(intItem("0"))
			} else {
				list.add(parseItem(isDigit, v[start:i]))
			}
			start = i + 1
			push()
		case c >= '0' && c <= '9':
			if !isDigit && i > start {
				list.add(newStringItem(v[start:i], true))
				start = i
				push()
			}
			isDigit = true
		default:
			if isDigit && i > start {
				list.add(parseItem(true, v[start:i]))
				start = i
				push()
			}
			isDigit = false
		}
	}
	if len(v) > start {
		list.add(parseItem(isDigit, v[start:]))
	}

	for i := len(stack) - 1; i >= 0; i-- {
		stack[i].normalize()
	}
	return root
}

func parseItem(isDigit bool, buf string) item {
	if isDigit {
		return newIntItem(buf)
	}
	return newStringItem(buf, false)
}

// String returns the version as given to Parse.
func (v *Version) String() string {
	return v.raw
}

// Canonical returns the normalised form used for ordering.
func (v *Version) Canonical() string {
	return v.items.String()
}

// Compare orders v against o using Maven semantics.
func (v *Version) Compare(o *Version) int {
	return v.items.compare(o.items)
}

// Compare orders two version strings using Maven semantics.
func Compare(a, b string) int {
	return Parse(a).Compare(Parse(b))
}

// Sort sorts versions in ascending Maven order. Equal versions keep their
// relative order.
func Sort(versions []string) {
	parsed := make(map[string]*Version, len(versions))
	for _, v := range versions {
		if _, ok := parsed[v]; !ok {
			parsed[v] = Parse(v)
		}
	}
	slices.SortStableFunc(versions, func(a, b string) int {
		return parsed[a].Compare(parsed[b])
	})
}

// Max returns the greatest version, or "" for an empty slice.
func Max(versions []string) string {
	var best *Version
	for _, v := range versions {
		p := Parse(v)
		if best == nil || p.Compare(best) > 0 {
			best = p
		}
	}
	if best == nil {
		return ""
	}
	return best.raw
}
