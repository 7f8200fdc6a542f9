// Package sourcetest serves fake bitey remotes over HTTP for tests.
package sourcetest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/bitey-pm/bitey/pkg/manifest"
)

// Remote is an in-memory remote: an index, pointers and manifests, plus any
// extra files (archives) registered with SetFile.
type Remote struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string][]byte
	statuses map[string]int
	listed   map[string]bool
	hits     map[string]int
}

// NewRemote starts a fake remote. It is closed when the test ends.
func NewRemote(t interface{ Cleanup(func()) }) *Remote {
	r := &Remote{
		files:    map[string][]byte{},
		statuses: map[string]int{},
		listed:   map[string]bool{},
		hits:     map[string]int{},
	}
	r.Server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.Close)
	return r
}

func (r *Remote) serve(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.hits[req.URL.Path]++
	status, forced := r.statuses[req.URL.Path]
	body, ok := r.files[req.URL.Path]
	if req.URL.Path == "/list.txt" && !ok {
		body, ok = r.indexLocked(), true
	}
	r.mu.Unlock()

	switch {
	case forced:
		w.WriteHeader(status)
	case !ok:
		http.NotFound(w, req)
	default:
		w.Write(body)
	}
}

func (r *Remote) indexLocked() []byte {
	names := make([]string, 0, len(r.listed))
	for n := range r.listed {
		names = append(names, n)
	}
	sort.Strings(names)
	return []byte(strings.Join(names, "\n") + "\n")
}

// AddPackage lists m in the index and serves its pointer and manifest.
func (r *Remote) AddPackage(m *manifest.Manifest) {
	data, err := m.Marshal()
	if err != nil {
		panic(err)
	}
	r.AddRaw(m.Name, data)
}

// AddRaw lists name and serves data verbatim as its manifest.
func (r *Remote) AddRaw(name string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listed[name] = true
	r.files["/"+name+".yml"] = []byte(fmt.Sprintf("url: %s\n", r.ManifestURL(name)))
	r.files[r.manifestPath(name)] = data
}

// Unlist removes name from the index but keeps serving its documents.
func (r *Remote) Unlist(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listed, name)
}

// SetFile serves data at path (which must start with '/').
func (r *Remote) SetFile(path string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = data
}

// SetStatus makes every request for path answer with status.
func (r *Remote) SetStatus(path string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[path] = status
}

// Hits returns how many requests path received.
func (r *Remote) Hits(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[path]
}

// ManifestURL is the absolute URL the pointer for name refers to.
func (r *Remote) ManifestURL(name string) string {
	return r.URL + r.manifestPath(name)
}

func (r *Remote) manifestPath(name string) string {
	return "/manifests/" + name + ".yml"
}

// Manifest builds a minimal valid manifest.
func Manifest(name, version string, deps ...string) *manifest.Manifest {
	return &manifest.Manifest{
		Name:         name,
		Version:      version,
		Maintainer:   "tests",
		Description:  name + " package",
		Install:      manifest.Install{Commands: "true"},
		Dependencies: deps,
	}
}
