package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// expandPaths expands glob patterns, including "**", into file paths.
// Arguments without glob characters are kept as given so a missing file
// is reported by the library rather than silently dropped.
func expandPaths(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			out = append(out, arg)
			continue
		}
		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matches no files", arg)
		}
		out = append(out, matches...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// parseRange parses "a:b" as the half-open index range [a, b) within
// [0, n). Either bound may be omitted; "" selects everything.
func parseRange(s string, n int) (int, int, error) {
	if s == "" {
		return 0, n, nil
	}
	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("range %q is not of the form a:b", s)
	}
	start, end := 0, n
	var err error
	if lo != "" {
		if start, err = strconv.Atoi(lo); err != nil {
			return 0, 0, fmt.Errorf("range %q: %w", s, err)
		}
	}
	if hi != "" {
		if end, err = strconv.Atoi(hi); err != nil {
			return 0, 0, fmt.Errorf("range %q: %w", s, err)
		}
	}
	if start < 0 || end > n || start >= end {
		return 0, 0, fmt.Errorf("range %q is empty or outside 0:%d", s, n)
	}
	return start, end, nil
}
