package installer

import (
	"fmt"

	"github.com/bitey-pm/bitey/pkg/manifest"
	"github.com/bitey-pm/bitey/pkg/store"
)

// Remove deletes name's package directory. Packages that depend on it are
// not consulted; callers wanting a warning use RequiredBy first.
func (inst *Installer) Remove(name string) error {
	if err := inst.checkExists(name); err != nil {
		return err
	}

	lock, err := inst.Store.Lock(name)
	if err != nil {
		return err
	}
	defer lock.Release()

	// The package may have been removed between the check and the lock.
	if err := inst.checkExists(name); err != nil {
		return err
	}

	// Best effort: a package with a broken manifest is still removable.
	if m, err := store.ReadManifest(inst.Store, name); err == nil {
		for _, dep := range m.Dependencies {
			if err := store.DropRequiredBy(inst.Store, dep, name); err != nil {
				inst.logger().Warn("could not update receipt", "package", dep, "err", err)
			}
		}
	}

	if err := inst.Store.Remove(name); err != nil {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	inst.logger().Info("removed", "package", name)
	return nil
}

func (inst *Installer) checkExists(name string) error {
	if !manifest.ValidName(name) {
		return fmt.Errorf("%w: invalid package name %q", ErrNotFound, name)
	}
	ok, err := inst.Store.Exists(name)
	if err != nil {
		return fmt.Errorf("checking %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// RequiredBy returns the installed packages recorded as depending on name.
func (inst *Installer) RequiredBy(name string) ([]string, error) {
	if !manifest.ValidName(name) {
		return nil, fmt.Errorf("%w: invalid package name %q", ErrNotFound, name)
	}
	r, err := store.ReadReceipt(inst.Store, name)
	if err != nil {
		return nil, err
	}
	return r.RequiredBy, nil
}
