package vfs

import (
	"context"
	"regexp"
	"strings"
)

const defaultMaxResults = 1000

// SearchOptions tunes Facade.Search. The zero value is a case-insensitive
// literal search.
type SearchOptions struct {
	Regex         bool
	CaseSensitive bool
	WholeWord     bool
	// MaxResults caps the number of matches; 0 means the default of 1000.
	MaxResults int
}

// SearchMatch is one occurrence of the query. Line and Column are 1-based.
type SearchMatch struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Text   string `json:"text"`
}

func compileQuery(query string, opts SearchOptions) (*regexp.Regexp, error) {
	if query == "" {
		return nil, newError(KindInvalidArgument, "empty search query")
	}
	pattern := query
	if !opts.Regex {
		pattern = regexp.QuoteMeta(query)
	}
	if opts.WholeWord {
		pattern = `\b(?:` + pattern + `)\b`
	}
	if !opts.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, wrapError(KindInvalidArgument, err, "invalid search pattern "+query)
	}
	return re, nil
}

// Search walks dir on the active backend through List and ReadFile and
// returns every line matching query. Hidden entries, node_modules and
// binary files are skipped, as are subdirectories and files that fail to
// load. A failure to list dir itself is returned.
func (f *Facade) Search(ctx context.Context, dir string, query string, opts SearchOptions) Result[[]SearchMatch] {
	re, err := compileQuery(query, opts)
	if err != nil {
		return Fail[[]SearchMatch](err).annotate(f.Active())
	}
	limit := opts.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}

	top := f.List(ctx, dir)
	if !top.Success {
		return failAs[[]SearchMatch](top)
	}
	s := &search{f: f, re: re, limit: limit, matches: []SearchMatch{}}
	if err := s.walk(ctx, top.Payload); err != nil {
		return Fail[[]SearchMatch](err).annotate(top.Backend)
	}
	f.logger.Debug("Search finished", "dir", dir, "matches", len(s.matches), "truncated", s.full())
	return OK(s.matches).annotate(top.Backend)
}

type search struct {
	f       *Facade
	re      *regexp.Regexp
	limit   int
	matches []SearchMatch
}

func (s *search) full() bool { return len(s.matches) >= s.limit }

func (s *search) walk(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.full() {
			return nil
		}
		if strings.HasPrefix(e.Name, ".") || e.Name == "node_modules" {
			continue
		}
		if e.Kind == KindDirectory {
			sub := s.f.List(ctx, e.Path)
			if !sub.Success {
				s.f.logger.Debug("Search skipped directory", "path", e.Path, "kind", sub.Kind)
				continue
			}
			if err := s.walk(ctx, sub.Payload); err != nil {
				return err
			}
			continue
		}
		read := s.f.ReadFile(ctx, e.Path)
		if !read.Success {
			s.f.logger.Debug("Search skipped file", "path", e.Path, "kind", read.Kind)
			continue
		}
		s.scan(e.Path, read.Payload)
	}
	return nil
}

func (s *search) scan(p, content string) {
	if strings.IndexByte(content, 0) >= 0 {
		return
	}
	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimSuffix(line, "\r")
		for _, loc := range s.re.FindAllStringIndex(line, -1) {
			if s.full() {
				return
			}
			if loc[0] == loc[1] {
				continue
			}
			s.matches = append(s.matches, SearchMatch{
				Path:   p,
				Line:   i + 1,
				Column: loc[0] + 1,
				Text:   strings.TrimSpace(line),
			})
		}
	}
}
