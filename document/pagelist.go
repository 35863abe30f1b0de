package document

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// maxRangeSpan caps a single a-b range so a typo cannot allocate gigabytes.
const maxRangeSpan = 1 << 20

// ParsePageList parses 1-based page notation like "1,3,5-10" into a sorted,
// de-duplicated slice of zero-based page indexes.
func ParsePageList(s string) ([]int, error) {
	seen := make(map[int]struct{})
	var pages []int
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		start, end := item, item
		if i := strings.IndexByte(item, '-'); i >= 0 {
			start, end = item[:i], item[i+1:]
		}
		lo, err := parsePageNumber(start)
		if err != nil {
			return nil, err
		}
		hi := lo
		if end != start {
			if hi, err = parsePageNumber(end); err != nil {
				return nil, err
			}
		}
		if hi < lo {
			return nil, fmt.Errorf("page list: inverted range %q", item)
		}
		if hi-lo >= maxRangeSpan {
			return nil, fmt.Errorf("page list: range %q too large", item)
		}
		for p := lo; p <= hi; p++ {
			if _, dup := seen[p-1]; dup {
				continue
			}
			seen[p-1] = struct{}{}
			pages = append(pages, p-1)
		}
	}
	sort.Ints(pages)
	return pages, nil
}

func parsePageNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("page list: invalid page %q", s)
	}
	if n < 1 {
		return 0, fmt.Errorf("page list: pages are 1-based, got %d", n)
	}
	return n, nil
}

// FormatPageList renders zero-based page indexes in the 1-based notation
// ParsePageList accepts. Runs of three or more consecutive pages collapse
// into ranges.
func FormatPageList(pages []int) string {
	if len(pages) == 0 {
		return ""
	}
	uniq := append([]int(nil), pages...)
	sort.Ints(uniq)
	n := 1
	for _, p := range uniq[1:] {
		if p != uniq[n-1] {
			uniq[n] = p
			n++
		}
	}
	uniq = uniq[:n]

	var b strings.Builder
	for i := 0; i < len(uniq); {
		j := i
		for j+1 < len(uniq) && uniq[j+1] == uniq[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		switch {
		case j == i:
			fmt.Fprintf(&b, "%d", uniq[i]+1)
		case j == i+1:
			fmt.Fprintf(&b, "%d,%d", uniq[i]+1, uniq[j]+1)
		default:
			fmt.Fprintf(&b, "%d-%d", uniq[i]+1, uniq[j]+1)
		}
		i = j + 1
	}
	return b.String()
}

// ResolvePages applies an include list and a skip list to a document of
// total pages. A nil include list selects every page; out-of-range indexes
// are dropped. The result is sorted and zero-based.
func ResolvePages(total int, include, skip []int) []int {
	skipSet := make(map[int]struct{}, len(skip))
	for _, p := range skip {
		skipSet[p] = struct{}{}
	}
	var pages []int
	add := func(p int) {
		if p < 0 || p >= total {
			return
		}
		if _, drop := skipSet[p]; drop {
			return
		}
		pages = append(pages, p)
	}
	if include == nil {
		for p := 0; p < total; p++ {
			add(p)
		}
		return pages
	}
	seen := make(map[int]struct{}, len(include))
	for _, p := range include {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		add(p)
	}
	sort.Ints(pages)
	return pages
}
