package remote

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sigs.k8s.io/yaml"
)

const (
	// DescriptorFile is the filename that marks a remote directory.
	DescriptorFile = "remote.yml"

	// PPABaseURL is where "ppa:<profile>/<ppa>" shorthands point.
	PPABaseURL = "http://ppa.wheedev.org"
	ppaPrefix  = "ppa:"
)

var (
	ErrRemoteExists   = errors.New("remote already exists")
	ErrRemoteNotFound = errors.New("remote not found")
)

// Remote is a named package source.
type Remote struct {
	Name string
	URL  string
}

type descriptor struct {
	URL string `json:"url"`
}

// List walks rootDir for remote descriptors and returns the remotes sorted
// by name. A descriptor that cannot be read or parsed is skipped and
// reported in the returned warnings; it never fails the walk. A missing
// rootDir yields no remotes.
func List(rootDir string) ([]Remote, []error) {
	var (
		remotes  []Remote
		warnings []error
	)

	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == rootDir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			warnings = append(warnings, fmt.Errorf("walking %s: %w", path, err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || d.Name() != DescriptorFile {
			return nil
		}

		r, err := readDescriptor(path)
		if err != nil {
			warnings = append(warnings, err)
			return nil
		}
		remotes = append(remotes, r)
		return nil
	})
	if err != nil {
		warnings = append(warnings, fmt.Errorf("walking %s: %w", rootDir, err))
	}

	sort.SliceStable(remotes, func(i, j int) bool {
		return remotes[i].Name < remotes[j].Name
	})
	return remotes, warnings
}

func readDescriptor(path string) (Remote, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Remote{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var d descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Remote{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if d.URL == "" {
		return Remote{}, fmt.Errorf("parsing %s: missing url", path)
	}

	return Remote{
		Name: filepath.Base(filepath.Dir(path)),
		URL:  strings.TrimRight(d.URL, "/"),
	}, nil
}

// Add registers a remote under rootDir. arg is either an absolute http(s)
// URL or a "ppa:<profile>/<ppa>" shorthand. When name is empty it is
// derived from the URL. Re-adding the same URL under the same name is a
// no-op; a different URL under an existing name fails with ErrRemoteExists.
func Add(rootDir, arg, name string) (Remote, error) {
	u, err := ExpandURL(arg)
	if err != nil {
		return Remote{}, err
	}
	if name == "" {
		name = DefaultName(u)
	}
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return Remote{}, fmt.Errorf("invalid remote name %q", name)
	}

	r := Remote{Name: name, URL: u}
	dir := filepath.Join(rootDir, name)
	path := filepath.Join(dir, DescriptorFile)

	if existing, err := readDescriptor(path); err == nil {
		if existing.URL == r.URL {
			return existing, nil
		}
		return Remote{}, fmt.Errorf("%w: %q points at %s", ErrRemoteExists, name, existing.URL)
	}

	data, err := yaml.Marshal(descriptor{URL: u})
	if err != nil {
		return Remote{}, fmt.Errorf("marshaling remote descriptor: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Remote{}, fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Remote{}, fmt.Errorf("writing %s: %w", path, err)
	}
	return r, nil
}

// Remove deletes the named remote's directory.
func Remove(rootDir, name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid remote name %q", name)
	}
	dir := filepath.Join(rootDir, name)
	if _, err := os.Stat(filepath.Join(dir, DescriptorFile)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %q", ErrRemoteNotFound, name)
		}
		return err
	}
	return os.RemoveAll(dir)
}

// ExpandURL turns a user-supplied remote argument into a base URL.
func ExpandURL(arg string) (string, error) {
	if rest, ok := strings.CutPrefix(arg, ppaPrefix); ok {
		rest = strings.Trim(rest, "/")
		if rest == "" || strings.Count(rest, "/") != 1 {
			return "", fmt.Errorf("invalid ppa %q: expected ppa:<profile>/<ppa>", arg)
		}
		return PPABaseURL + "/" + rest, nil
	}

	u, err := url.Parse(arg)
	if err != nil {
		return "", fmt.Errorf("invalid remote url %q: %w", arg, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid remote url %q: must be an absolute http(s) URL or ppa:<profile>/<ppa>", arg)
	}
	return strings.TrimRight(arg, "/"), nil
}

// DefaultName derives a directory-safe remote name from its URL, e.g.
// "https://example.com/repo" becomes "example.com_repo".
func DefaultName(u string) string {
	name := strings.TrimPrefix(u, "https://")
	name = strings.TrimPrefix(name, "http://")
	return strings.ReplaceAll(strings.Trim(name, "/"), "/", "_")
}
