package installer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/bitey-pm/bitey/pkg/manifest"
	"github.com/bitey-pm/bitey/pkg/source"
	"github.com/bitey-pm/bitey/pkg/store"
)

type UpdateStatus string

const (
	Updated  UpdateStatus = "updated"
	UpToDate UpdateStatus = "up-to-date"
)

type UpdateResult struct {
	Status  UpdateStatus
	Name    string
	Version string
	// Previous is the version that was installed, empty when the stored
	// manifest was missing or unreadable.
	Previous string
}

// Update refetches the manifest behind name's stored pointer and reinstalls
// the package when the version changed. An up-to-date package is left
// untouched on disk.
func (inst *Installer) Update(ctx context.Context, name string) (*UpdateResult, error) {
	if !manifest.ValidName(name) {
		return nil, fmt.Errorf("%w: invalid package name %q", ErrNotInstalled, name)
	}
	ok, err := inst.Store.Exists(name)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}

	raw, err := store.ReadPointer(inst.Store, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s (no %s)", ErrNotInstalled, name, store.PointerFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading pointer for %s: %w", name, err)
	}

	ptr, latest, err := inst.Client.FetchManifest(ctx, raw, inst.Store.Path(name, store.PointerFile))
	if err != nil {
		return nil, stageError(name, StageResolve, nil, err)
	}

	result := &UpdateResult{Name: name, Version: latest.Version}

	current, err := store.ReadManifest(inst.Store, name)
	switch {
	case err == nil:
		result.Previous = current.Version
		if current.Version == latest.Version {
			result.Status = UpToDate
			return result, nil
		}
	case errors.Is(err, fs.ErrNotExist):
		inst.logger().Warn("stored manifest missing, reinstalling", "package", name)
	default:
		inst.logger().Warn("stored manifest unreadable, reinstalling", "package", name, "err", err)
	}

	receipt, err := store.ReadReceipt(inst.Store, name)
	if err != nil {
		receipt = &store.Receipt{}
	}
	inst.warnMissingDependencies(name, latest.Dependencies)

	res := &source.Resolved{
		Name:       name,
		RemoteURL:  receipt.Remote,
		RawPointer: raw,
		Pointer:    ptr,
		Manifest:   latest,
	}
	if err := inst.Install(ctx, res); err != nil {
		return nil, err
	}

	result.Status = Updated
	return result, nil
}

// UpdateAll updates each name, or every installed package when names is
// empty. It keeps going past failures and returns them joined.
func (inst *Installer) UpdateAll(ctx context.Context, names []string) ([]*UpdateResult, error) {
	if len(names) == 0 {
		installed, err := inst.installedNames()
		if err != nil {
			return nil, err
		}
		names = installed
	}

	var (
		results []*UpdateResult
		errs    []error
	)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		r, err := inst.Update(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("updating %s: %w", name, err))
			continue
		}
		results = append(results, r)
	}
	return results, errors.Join(errs...)
}

// warnMissingDependencies logs dependencies a newer manifest introduced
// that are not in the store. Update never installs new packages.
func (inst *Installer) warnMissingDependencies(name string, deps []string) {
	for _, dep := range deps {
		if ok, err := store.IsInstalled(inst.Store, dep); err == nil && !ok {
			inst.logger().Warn("dependency is not installed; run bitey install to add it", "package", name, "dependency", dep)
		}
	}
}

func (inst *Installer) installedNames() ([]string, error) {
	all, err := inst.Store.Packages()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, name := range all {
		if ok, err := store.IsInstalled(inst.Store, name); err == nil && ok {
			names = append(names, name)
		}
	}
	return names, nil
}
