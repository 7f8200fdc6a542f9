package installer

import (
	"context"
	"os"
	"time"

	"github.com/bitey-pm/bitey/pkg/archive"
	"github.com/bitey-pm/bitey/pkg/source"
	"github.com/bitey-pm/bitey/pkg/store"
)

// Install writes res into the store and runs its install script. The
// package directory is replaced, so a reinstall starts from a clean slate;
// only the required-by list of an earlier receipt is carried over.
//
// Nothing is rolled back: a failed download, extraction or script leaves
// the files written by earlier steps in place.
func (inst *Installer) Install(ctx context.Context, res *source.Resolved) error {
	start := time.Now()
	err := inst.install(ctx, res)
	inst.Metrics.ObserveInstall(start, err)
	return err
}

func (inst *Installer) install(ctx context.Context, res *source.Resolved) error {
	name, m := res.Name, res.Manifest
	log := inst.logger().With("package", name, "version", m.Version)

	lock, err := inst.Store.Lock(name)
	if err != nil {
		return stageError(name, StageLock, nil, err)
	}
	defer lock.Release()

	if err := ctx.Err(); err != nil {
		return stageError(name, StageLock, nil, err)
	}

	var requiredBy []string
	if prev, err := store.ReadReceipt(inst.Store, name); err == nil {
		requiredBy = prev.RequiredBy
	} else {
		log.Warn("ignoring unreadable receipt", "err", err)
	}

	log.Info("installing")

	if err := inst.Store.Remove(name); err != nil {
		return stageError(name, StageStore, ErrStoreWriteFailed, err)
	}
	if err := inst.Store.EnsureDir(name); err != nil {
		return stageError(name, StageStore, ErrStoreWriteFailed, err)
	}
	if err := store.WriteRecord(inst.Store, name, res.RawPointer, m); err != nil {
		return stageError(name, StageStore, ErrStoreWriteFailed, err)
	}

	if m.HasArchive() {
		if err := inst.fetchArchive(ctx, name, m.Source.Package); err != nil {
			return err
		}
	}

	if m.Install.Commands != "" {
		if err := inst.runScript(ctx, name, m.Version, m.Install.Commands); err != nil {
			return err
		}
	}

	integrity, err := inst.Store.HashDir(name)
	if err != nil {
		return stageError(name, StageReceipt, ErrStoreWriteFailed, err)
	}
	receipt := &store.Receipt{
		Remote:      res.RemoteURL,
		InstalledAt: time.Now().UTC().Truncate(time.Second),
		Integrity:   integrity,
		RequiredBy:  requiredBy,
	}
	if err := store.WriteReceipt(inst.Store, name, receipt); err != nil {
		return stageError(name, StageReceipt, ErrStoreWriteFailed, err)
	}

	log.Info("installed", "integrity", integrity)
	return nil
}

func (inst *Installer) fetchArchive(ctx context.Context, name, url string) error {
	dest := inst.Store.Path(name, name+archiveSuffix)

	if _, err := inst.Client.Download(ctx, url, dest); err != nil {
		return stageError(name, StageDownload, ErrArchiveDownloadFailed, err)
	}

	format, err := archive.Extract(dest, inst.Store.Path(name))
	if err != nil {
		return stageError(name, StageExtract, ErrArchiveExtractFailed, err)
	}
	inst.logger().Debug("extracted archive", "package", name, "format", format)

	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return stageError(name, StageExtract, ErrArchiveExtractFailed, err)
	}
	return nil
}

func (inst *Installer) runScript(ctx context.Context, name, version, commands string) error {
	dir := inst.Store.Path(name)
	env := map[string]string{
		"ROOT":          inst.InstallPrefix,
		"BITEY_PACKAGE": name,
		"BITEY_VERSION": version,
		"BITEY_PKG_DIR": dir,
	}

	res, err := inst.runner().Run(ctx, dir, commands, env)
	if err != nil {
		return stageError(name, StageScript, ErrInstallScriptFailed, err)
	}
	inst.logger().Debug("install script finished", "package", name, "duration", res.Duration)
	return nil
}
