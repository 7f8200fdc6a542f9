package installer

import (
	"time"

	"github.com/bitey-pm/bitey/pkg/store"
)

// InstalledPackage is one row of the installed package listing.
type InstalledPackage struct {
	Name        string
	Version     string
	Description string
	Remote      string
	InstalledAt time.Time
	RequiredBy  []string
	// Err is set when the stored manifest or receipt could not be read.
	Err error
}

// List returns every package with a complete record in the store, sorted by
// name.
func (inst *Installer) List() ([]InstalledPackage, error) {
	names, err := inst.installedNames()
	if err != nil {
		return nil, err
	}

	pkgs := make([]InstalledPackage, 0, len(names))
	for _, name := range names {
		p := InstalledPackage{Name: name}

		m, err := store.ReadManifest(inst.Store, name)
		if err != nil {
			p.Err = err
			pkgs = append(pkgs, p)
			continue
		}
		p.Version = m.Version
		p.Description = m.Description

		r, err := store.ReadReceipt(inst.Store, name)
		if err != nil {
			p.Err = err
		} else {
			p.Remote = r.Remote
			p.InstalledAt = r.InstalledAt
			p.RequiredBy = r.RequiredBy
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, nil
}
