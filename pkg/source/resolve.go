package source

import (
	"context"
	"fmt"

	"github.com/bitey-pm/bitey/pkg/manifest"
)

// pointerSuffix is appended to a package name to form its pointer path.
const pointerSuffix = ".yml"

// Resolved is a package's pointer and manifest as fetched from a remote.
type Resolved struct {
	Name      string
	RemoteURL string
	// RawPointer is the pointer document exactly as served; it is stored
	// verbatim so updates can find the manifest again.
	RawPointer []byte
	Pointer    *manifest.Pointer
	Manifest   *manifest.Manifest
}

// Resolve fetches the pointer for name from remoteURL and then the manifest
// the pointer names. Nothing is cached.
func (c *Client) Resolve(ctx context.Context, remoteURL, name string) (*Resolved, error) {
	if !manifest.ValidName(name) {
		return nil, fmt.Errorf("invalid package name %q", name)
	}

	pointerURL := joinURL(remoteURL, name+pointerSuffix)
	raw, err := c.getDocument(ctx, StagePointer, pointerURL)
	if err != nil {
		return nil, err
	}

	ptr, m, err := c.FetchManifest(ctx, raw, pointerURL)
	if err != nil {
		return nil, err
	}

	if m.Name != name {
		c.logger.Warn("manifest name differs from requested package; storing under the requested name",
			"package", name, "manifest_name", m.Name, "url", ptr.URL)
	}

	return &Resolved{
		Name:       name,
		RemoteURL:  remoteURL,
		RawPointer: raw,
		Pointer:    ptr,
		Manifest:   m,
	}, nil
}

// FetchManifest parses a raw pointer document and fetches the manifest it
// points at. origin is only used in error messages and may be a store path.
func (c *Client) FetchManifest(ctx context.Context, rawPointer []byte, origin string) (*manifest.Pointer, *manifest.Manifest, error) {
	ptr, err := manifest.ParsePointer(rawPointer)
	if err != nil {
		return nil, nil, &FetchError{Stage: StagePointer, URL: origin, Kind: ErrMalformedDocument, Err: err}
	}

	data, err := c.getDocument(ctx, StageManifest, ptr.URL)
	if err != nil {
		return nil, nil, err
	}

	m, err := manifest.Parse(data)
	if err != nil {
		return nil, nil, &FetchError{Stage: StageManifest, URL: ptr.URL, Kind: ErrMalformedDocument, Err: err}
	}
	return ptr, m, nil
}
