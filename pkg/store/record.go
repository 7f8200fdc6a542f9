package store

import (
	"fmt"
	"slices"
	"time"

	"github.com/bitey-pm/bitey/pkg/manifest"
	"github.com/pelletier/go-toml/v2"
)

// Files making up an installed package record.
const (
	ManifestFile = "manifest.yml"
	PointerFile  = "package.yml"
	ReceiptFile  = "receipt.toml"

	recordFilePerm = 0o644
)

// Record is the durable state of one installed package: the raw pointer
// document exactly as fetched and the manifest it resolved to.
type Record struct {
	Name       string
	RawPointer []byte
	Manifest   *manifest.Manifest
}

// Receipt carries informational install metadata. It is never consulted to
// decide whether a package is installed.
type Receipt struct {
	Remote      string    `toml:"remote,omitempty"`
	InstalledAt time.Time `toml:"installed_at"`
	Integrity   string    `toml:"integrity,omitempty"`
	RequiredBy  []string  `toml:"required_by,omitempty"`
}

// WriteRecord persists the manifest and raw pointer for name. The package
// directory must already exist.
func WriteRecord(s Store, name string, rawPointer []byte, m *manifest.Manifest) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := s.WriteFile(data, recordFilePerm, name, ManifestFile); err != nil {
		return fmt.Errorf("writing %s: %w", ManifestFile, err)
	}
	if err := s.WriteFile(rawPointer, recordFilePerm, name, PointerFile); err != nil {
		return fmt.Errorf("writing %s: %w", PointerFile, err)
	}
	return nil
}

// ReadPointer returns the raw pointer text stored for name.
func ReadPointer(s Store, name string) ([]byte, error) {
	return s.ReadFile(name, PointerFile)
}

// ReadManifest loads and validates the stored manifest for name.
func ReadManifest(s Store, name string) (*manifest.Manifest, error) {
	data, err := s.ReadFile(name, ManifestFile)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing stored manifest for %q: %w", name, err)
	}
	return m, nil
}

// ReadRecord loads both halves of an installed package record.
func ReadRecord(s Store, name string) (*Record, error) {
	raw, err := ReadPointer(s, name)
	if err != nil {
		return nil, err
	}
	m, err := ReadManifest(s, name)
	if err != nil {
		return nil, err
	}
	return &Record{Name: name, RawPointer: raw, Manifest: m}, nil
}

// IsInstalled reports whether both record files are present for name.
func IsInstalled(s Store, name string) (bool, error) {
	for _, f := range []string{PointerFile, ManifestFile} {
		ok, err := s.Exists(name, f)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// ReadReceipt returns the receipt for name, or an empty receipt when none
// has been written.
func ReadReceipt(s Store, name string) (*Receipt, error) {
	r := &Receipt{}
	ok, err := s.Exists(name, ReceiptFile)
	if err != nil || !ok {
		return r, err
	}
	data, err := s.ReadFile(name, ReceiptFile)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing %s for %q: %w", ReceiptFile, name, err)
	}
	return r, nil
}

func WriteReceipt(s Store, name string, r *Receipt) error {
	slices.Sort(r.RequiredBy)
	r.RequiredBy = slices.Compact(r.RequiredBy)

	data, err := toml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling receipt: %w", err)
	}
	return s.WriteFile(data, recordFilePerm, name, ReceiptFile)
}

// AddRequiredBy records that dependent requires name. A missing package
// directory is not an error; there is nothing to annotate.
func AddRequiredBy(s Store, name, dependent string) error {
	return updateReceipt(s, name, func(r *Receipt) bool {
		if slices.Contains(r.RequiredBy, dependent) {
			return false
		}
		r.RequiredBy = append(r.RequiredBy, dependent)
		return true
	})
}

// DropRequiredBy removes dependent from name's required-by list.
func DropRequiredBy(s Store, name, dependent string) error {
	return updateReceipt(s, name, func(r *Receipt) bool {
		i := slices.Index(r.RequiredBy, dependent)
		if i < 0 {
			return false
		}
		r.RequiredBy = slices.Delete(r.RequiredBy, i, i+1)
		return true
	})
}

func updateReceipt(s Store, name string, mutate func(*Receipt) bool) error {
	ok, err := s.Exists(name)
	if err != nil || !ok {
		return err
	}
	r, err := ReadReceipt(s, name)
	if err != nil {
		return err
	}
	if !mutate(r) {
		return nil
	}
	return WriteReceipt(s, name, r)
}
