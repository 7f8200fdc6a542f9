package manifest

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"sigs.k8s.io/yaml"
)

const maxNameLength = 128

var validNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._+-]*$`)

// Manifest is the full description of a package as served by a remote.
type Manifest struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Maintainer   string   `json:"maintainer"`
	Description  string   `json:"description"`
	Source       Source   `json:"source"`
	Install      Install  `json:"install"`
	Dependencies []string `json:"dependencies,omitempty"`
}

type Source struct {
	Raw     string `json:"raw,omitempty"`
	Package string `json:"package,omitempty"` // archive URL, extracted into the store
}

type Install struct {
	Commands string `json:"commands"`
}

// Pointer is the indirection document a remote serves at <remote>/<name>.yml.
type Pointer struct {
	URL string `json:"url"`
}

// Parse decodes a manifest document and validates it.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ParsePointer decodes a pointer document. The url field must be an
// absolute http(s) URL.
func ParsePointer(data []byte) (*Pointer, error) {
	p := &Pointer{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decoding pointer: %w", err)
	}
	if p.URL == "" {
		return nil, fmt.Errorf("pointer is missing the url field")
	}
	if err := validateHTTPURL(p.URL); err != nil {
		return nil, fmt.Errorf("pointer url: %w", err)
	}
	return p, nil
}

func (m *Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}

// HasArchive reports whether installing the package downloads an archive.
func (m *Manifest) HasArchive() bool {
	return m.Source.Package != ""
}

func (m *Manifest) Validate() error {
	var err error
	if !ValidName(m.Name) {
		err = errors.Join(err, fmt.Errorf("package name %q must be max %d characters of lowercase letters, digits, '.', '_', '+' or '-', starting with a letter or digit", m.Name, maxNameLength))
	}

	if m.Version == "" {
		err = errors.Join(err, fmt.Errorf("version must be provided"))
	}

	if m.Install.Commands == "" && !m.HasArchive() {
		err = errors.Join(err, fmt.Errorf("install.commands must be provided when source.package is not set"))
	}

	if m.HasArchive() {
		if uerr := validateHTTPURL(m.Source.Package); uerr != nil {
			err = errors.Join(err, fmt.Errorf("source.package: %w", uerr))
		}
	}

	seen := make(map[string]bool, len(m.Dependencies))
	for _, dep := range m.Dependencies {
		switch {
		case !ValidName(dep):
			err = errors.Join(err, fmt.Errorf("dependency name %q is not a valid package name", dep))
		case dep == m.Name:
			err = errors.Join(err, fmt.Errorf("package %q depends on itself", m.Name))
		case seen[dep]:
			err = errors.Join(err, fmt.Errorf("dependency %q is listed more than once", dep))
		}
		seen[dep] = true
	}

	return err
}

// ValidName reports whether name can be used as a package name. Names
// double as store directory names, so path separators and leading dots are
// rejected.
func ValidName(name string) bool {
	return len(name) <= maxNameLength && validNameRegex.MatchString(name)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q is not an http(s) URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
