package source

import (
	"bufio"
	"bytes"
	"context"
	"slices"
	"strings"

	"github.com/bitey-pm/bitey/pkg/remote"
	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/errgroup"
)

const (
	// IndexFile is the newline-delimited package list every remote serves.
	IndexFile = "list.txt"

	maxSuggestions = 3
)

// FetchIndex returns the package names listed by the remote at baseURL.
// Blank lines and lines starting with '#' are ignored.
func (c *Client) FetchIndex(ctx context.Context, baseURL string) ([]string, error) {
	data, err := c.getDocument(ctx, StageIndex, joinURL(baseURL, IndexFile))
	if err != nil {
		return nil, err
	}
	return parseIndex(data), nil
}

func parseIndex(data []byte) []string {
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	return names
}

// Locate returns the first remote, in the order given, whose index lists
// name. Callers pass remotes sorted by name (as remote.List returns them),
// which makes the answer deterministic when several remotes carry the same
// package. A remote whose index cannot be fetched is logged and treated as
// not having the package.
//
// Returns a *PackageNotFoundError (matching ErrPackageNotFound) when no
// remote lists the name.
func (c *Client) Locate(ctx context.Context, name string, remotes []remote.Remote) (remote.Remote, error) {
	indexes := make([][]string, len(remotes))

	if c.opts.Concurrency < 2 {
		for i, r := range remotes {
			if err := ctx.Err(); err != nil {
				return remote.Remote{}, err
			}
			indexes[i] = c.indexOrNil(ctx, r)
			if slices.Contains(indexes[i], name) {
				return r, nil
			}
		}
	} else {
		var g errgroup.Group
		g.SetLimit(c.opts.Concurrency)
		for i, r := range remotes {
			g.Go(func() error {
				indexes[i] = c.indexOrNil(ctx, r)
				return nil
			})
		}
		// indexOrNil logs and swallows fetch failures, so Wait has no error.
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return remote.Remote{}, err
		}

		// Positional scan: completion order never decides the winner.
		for i, r := range remotes {
			if slices.Contains(indexes[i], name) {
				return r, nil
			}
		}
	}

	return remote.Remote{}, &PackageNotFoundError{
		Name:        name,
		Suggestions: suggest(name, indexes),
	}
}

func (c *Client) indexOrNil(ctx context.Context, r remote.Remote) []string {
	names, err := c.FetchIndex(ctx, r.URL)
	if err != nil {
		c.logger.Warn("skipping remote", "remote", r.Name, "url", r.URL, "err", err)
		return nil
	}
	return names
}

func suggest(name string, indexes [][]string) []string {
	var all []string
	for _, idx := range indexes {
		all = append(all, idx...)
	}
	slices.Sort(all)
	all = slices.Compact(all)

	var out []string
	for _, m := range fuzzy.Find(name, all) {
		out = append(out, m.Str)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + path
}
