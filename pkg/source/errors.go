package source

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRemoteUnreachable covers transport failures and non-404 error
	// statuses that persisted through retries.
	ErrRemoteUnreachable = errors.New("remote unreachable")
	// ErrDocumentNotFound is an HTTP 404 for a document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrMalformedDocument is a document that could not be parsed or is
	// missing required fields.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrPackageNotFound means no configured remote lists the package.
	ErrPackageNotFound = errors.New("package not found")
)

// Stage names the document a fetch was after.
type Stage string

const (
	StageIndex    Stage = "index"
	StagePointer  Stage = "pointer"
	StageManifest Stage = "manifest"
	StageArchive  Stage = "archive"
)

// FetchError describes a failed fetch with enough context to tell an
// unreachable remote apart from a bad document.
type FetchError struct {
	Stage      Stage
	URL        string
	StatusCode int
	// Kind is one of the package's sentinel errors.
	Kind error
	Err  error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetching %s %s: %v", e.Stage, e.URL, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// PackageNotFoundError is returned by Locate when no remote lists a name.
type PackageNotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *PackageNotFoundError) Error() string {
	msg := fmt.Sprintf("package %q not found in any remote", e.Name)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean: %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

func (e *PackageNotFoundError) Unwrap() error {
	return ErrPackageNotFound
}
