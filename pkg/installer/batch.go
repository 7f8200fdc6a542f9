package installer

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/bitey-pm/bitey/pkg/resolver"
	"github.com/bitey-pm/bitey/pkg/store"
)

// ConfirmFunc is shown the full install plan before anything is written.
// Returning false aborts the batch.
type ConfirmFunc func(plan *resolver.Plan) (bool, error)

// Report is the outcome of a batch install.
type Report struct {
	Installed []string
	Skipped   []string
	Failed    []*StageError
}

// Err joins every failure in the report, or returns nil.
func (r *Report) Err() error {
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

func (r *Report) fail(se *StageError) {
	r.Failed = append(r.Failed, se)
}

// InstallPackages resolves every name with its dependencies into one plan,
// asks confirm (when non-nil) and installs the plan in dependency order.
// A name that fails to resolve, or a package that fails to install, is
// recorded in the report without stopping the rest of the batch; packages
// depending on a failed one are not attempted.
//
// The returned error is non-nil only when the batch did not run: the plan
// was declined (ErrAborted) or confirm itself failed.
func (inst *Installer) InstallPackages(ctx context.Context, names []string, confirm ConfirmFunc) (*Report, error) {
	report := &Report{}
	plan, resolveFailures := inst.Plan(ctx, names)
	for _, se := range resolveFailures {
		report.fail(se)
	}

	if plan.Len() == 0 {
		return report, nil
	}

	if confirm != nil {
		ok, err := confirm(plan)
		if err != nil {
			return report, fmt.Errorf("confirming install: %w", err)
		}
		if !ok {
			return report, ErrAborted
		}
	}

	log := inst.logger()
	failed := map[string]bool{}

	for _, e := range plan.Entries() {
		if err := ctx.Err(); err != nil {
			report.fail(stageError(e.Name, StageLock, nil, err))
			failed[e.Name] = true
			continue
		}

		if dep := firstFailed(e.Manifest.Dependencies, failed); dep != "" {
			report.fail(stageError(e.Name, StageDependency, nil, fmt.Errorf("dependency %q failed to install", dep)))
			failed[e.Name] = true
			continue
		}

		if !e.Requested && inst.installedAt(e.Name, e.Manifest.Version) {
			log.Info("dependency already installed", "package", e.Name, "version", e.Manifest.Version)
			inst.Metrics.ObserveSkip()
			report.Skipped = append(report.Skipped, e.Name)
			inst.linkDependencies(e.Name, e.Manifest.Dependencies)
			continue
		}

		if err := inst.Install(ctx, e.Resolved); err != nil {
			report.fail(asStageError(e.Name, StageStore, err))
			failed[e.Name] = true
			continue
		}
		report.Installed = append(report.Installed, e.Name)
		inst.linkDependencies(e.Name, e.Manifest.Dependencies)
	}

	return report, nil
}

// Plan locates and resolves each name and merges the dependency closures
// into a single ordered plan. Names that cannot be resolved are returned
// as failures; the remaining names are still planned.
func (inst *Installer) Plan(ctx context.Context, names []string) (*resolver.Plan, []*StageError) {
	plan := resolver.NewPlan()
	var failures []*StageError

	for _, name := range names {
		// Already pulled in as a dependency of an earlier name.
		if e, ok := plan.Get(name); ok {
			plan.Add(e.Resolved, true)
			continue
		}

		sub, err := inst.planOne(ctx, name)
		if err != nil {
			failures = append(failures, stageError(name, StageResolve, nil, err))
			continue
		}
		plan.Merge(sub)
	}
	return plan, failures
}

func (inst *Installer) planOne(ctx context.Context, name string) (*resolver.Plan, error) {
	r, err := inst.Client.Locate(ctx, name, inst.Remotes)
	if err != nil {
		return nil, err
	}
	inst.logger().Debug("located package", "package", name, "remote", r.Name)

	root, err := inst.Client.Resolve(ctx, r.URL, name)
	if err != nil {
		return nil, err
	}

	plan, err := resolver.Closure(ctx, inst.Client, root)
	if err != nil {
		return nil, err
	}
	plan.Add(root, true)
	return plan, nil
}

// installedAt reports whether name is installed with exactly version.
func (inst *Installer) installedAt(name, version string) bool {
	ok, err := store.IsInstalled(inst.Store, name)
	if err != nil || !ok {
		return false
	}
	m, err := store.ReadManifest(inst.Store, name)
	return err == nil && m.Version == version
}

// linkDependencies records dependent in each dependency's receipt.
func (inst *Installer) linkDependencies(dependent string, deps []string) {
	for _, dep := range deps {
		if err := store.AddRequiredBy(inst.Store, dep, dependent); err != nil {
			inst.logger().Warn("could not update receipt", "package", dep, "required_by", dependent, "err", err)
		}
	}
}

func firstFailed(deps []string, failed map[string]bool) string {
	i := slices.IndexFunc(deps, func(d string) bool { return failed[d] })
	if i < 0 {
		return ""
	}
	return deps[i]
}
