// Package scenefiles expands command line arguments into scene file paths.
// Directories are searched recursively and glob patterns support ** for any
// number of directories.
package scenefiles

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// DefaultPatterns select scene files inside a directory
var DefaultPatterns = []string{"**/*.yaml", "**/*.yml", "**/*.json"}

// DefaultExclusions are skipped while searching directories. Bare names match a path
// component, anything else is a glob on the relative path.
var DefaultExclusions = []string{".git", "vendor", "node_modules", "wbc.yaml", "*.tmp", "*.bak", "*~"}

// Matcher matches slash separated relative paths against glob patterns
type Matcher struct {
	regexps []*regexp.Regexp
}

// NewMatcher compiles patterns
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{regexps: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := globToRegex(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		m.regexps = append(m.regexps, re)
	}
	return m, nil
}

// Match reports whether path matches any pattern
func (m *Matcher) Match(path string) bool {
	path = filepath.ToSlash(path)
	for _, re := range m.regexps {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func exclusionPatterns(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !strings.ContainsAny(n, "*?[/") {
			out = append(out, n, "**/"+n, n+"/**", "**/"+n+"/**")
			continue
		}
		if !strings.HasPrefix(n, "**") {
			n = "**/" + n
		}
		out = append(out, n)
	}
	return out
}

// globToRegex converts a glob to an anchored regular expression.
// * and ? stop at /, ** crosses directories and "**/" may match nothing.
func globToRegex(pattern string) (*regexp.Regexp, error) {
	pattern = filepath.ToSlash(pattern)

	var re strings.Builder
	re.WriteString("^")
	for i := 0; i < len(pattern); {
		switch pattern[i] {
		case '*':
			switch {
			case strings.HasPrefix(pattern[i:], "**/"):
				re.WriteString("(.*/)?")
				i += 3
			case strings.HasPrefix(pattern[i:], "**"):
				re.WriteString(".*")
				i += 2
			default:
				re.WriteString("[^/]*")
				i++
			}
		case '?':
			re.WriteString("[^/]")
			i++
		case '[':
			end := strings.IndexByte(pattern[i:], ']')
			if end < 0 {
				re.WriteString(`\[`)
				i++
				continue
			}
			class := pattern[i+1 : i+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			re.WriteString("[" + class + "]")
			i += end + 1
		default:
			re.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
			i++
		}
	}
	re.WriteString("$")
	return regexp.Compile(re.String())
}

// IsGlob reports whether s contains glob wildcards
func IsGlob(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// Expand resolves arguments to a sorted, duplicate free list of files. Plain files are
// kept even if they do not match DefaultPatterns; a directory or glob matching nothing
// is an error.
func Expand(args []string) ([]string, error) {
	include, err := NewMatcher(DefaultPatterns)
	if err != nil {
		return nil, err
	}
	exclude, err := NewMatcher(exclusionPatterns(DefaultExclusions))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		var found []string
		switch {
		case IsGlob(arg):
			m, err := NewMatcher([]string{arg})
			if err != nil {
				return nil, err
			}
			found, err = walk(globRoot(arg), exclude, func(_, full string) bool { return m.Match(full) })
			if err != nil {
				return nil, err
			}
		default:
			info, err := os.Stat(arg)
			if err != nil {
				return nil, err
			}
			if !info.IsDir() {
				add(arg)
				continue
			}
			found, err = walk(arg, exclude, func(rel, _ string) bool { return include.Match(rel) })
			if err != nil {
				return nil, err
			}
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("no scene files match %s", arg)
		}
		for _, f := range found {
			add(f)
		}
	}

	sort.Strings(out)
	return out, nil
}

// globRoot returns the longest directory prefix of pattern without wildcards
func globRoot(pattern string) string {
	parts := strings.Split(filepath.ToSlash(pattern), "/")
	var root []string
	for _, p := range parts[:len(parts)-1] {
		if IsGlob(p) {
			break
		}
		root = append(root, p)
	}
	if len(root) == 0 {
		return "."
	}
	dir := strings.Join(root, "/")
	if dir == "" {
		return "/"
	}
	return filepath.FromSlash(dir)
}

func walk(root string, exclude *Matcher, keep func(rel, full string) bool) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if exclude.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && keep(rel, path) {
			found = append(found, path)
		}
		return nil
	})
	return found, err
}
