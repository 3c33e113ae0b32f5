package connect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mcpq/mcpq/internal/clierr"
)

// Filter applies a server record's allow/deny globs to tool names.
// A deny match always wins; a non-empty allow list admits only matches;
// an empty allow list admits everything.
type Filter struct {
	allow []*regexp.Regexp
	deny  []*regexp.Regexp
}

// NewFilter compiles the allow and deny glob lists of a server record.
func NewFilter(allowed, disabled []string) (*Filter, error) {
	f := &Filter{}
	for _, pattern := range allowed {
		re, err := CompileGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad allowedTools pattern %q: %w", pattern, err)
		}
		f.allow = append(f.allow, re)
	}
	for _, pattern := range disabled {
		re, err := CompileGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad disabledTools pattern %q: %w", pattern, err)
		}
		f.deny = append(f.deny, re)
	}
	return f, nil
}

// Permits reports whether the filter admits the tool name.
func (f *Filter) Permits(name string) bool {
	for _, re := range f.deny {
		if re.MatchString(name) {
			return false
		}
	}
	if len(f.allow) == 0 {
		return true
	}
	for _, re := range f.allow {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Refuse returns a TOOL_DISABLED error when the filter blocks the tool,
// nil otherwise. Callers check it before a request leaves the process.
func (f *Filter) Refuse(server, name string) error {
	if f.Permits(name) {
		return nil
	}
	return clierr.New(clierr.ToolDisabled,
		"tool %q is disabled for server %q", name, server).
		WithSuggestion("adjust allowedTools/disabledTools for this server to enable it")
}

// CompileGlob compiles a glob into an anchored case-insensitive regexp:
// * matches any run of characters, ? exactly one, everything else is
// literal. The same semantics govern tool filters and the grep command.
func CompileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
