package driver

import (
	"context"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"dockbench/pkg/benchmark"
)

var rowReturningKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"SHOW":     true,
	"EXPLAIN":  true,
	"VALUES":   true,
	"PRAGMA":   true,
	"DESCRIBE": true,
	"DESC":     true,
	"TABLE":    true,
}

// ReturnsRows reports whether a statement's record count is the number of
// rows it returns rather than the number of rows it changes.
func ReturnsRows(statement string) bool {
	return rowReturningKeywords[firstKeyword(statement)]
}

// firstKeyword skips leading whitespace, comments and parentheses.
func firstKeyword(statement string) string {
	s := statement
	for {
		s = strings.TrimLeft(s, " \t\r\n(")
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = s[i+1:]
				continue
			}
			return ""
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = s[i+2:]
				continue
			}
			return ""
		}
		break
	}

	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		end = len(s)
	}
	return strings.ToUpper(s[:end])
}

// repeatQuery runs once Repeat times spread over Concurrency workers and sums
// the record counts. The first failure cancels the remaining executions.
func repeatQuery(ctx context.Context, p benchmark.QueryPayload, once func(context.Context, string) (int64, error)) (int64, error) {
	repeat := max(p.Repeat, 1)
	workers := min(max(p.Concurrency, 1), repeat)

	var total atomic.Int64
	if workers == 1 {
		for i := 0; i < repeat; i++ {
			n, err := once(ctx, p.Statement)
			total.Add(n)
			if err != nil {
				return total.Load(), err
			}
		}
		return total.Load(), nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < repeat; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			n, err := once(gctx, p.Statement)
			total.Add(n)
			return err
		})
	}
	err := g.Wait()
	return total.Load(), err
}
