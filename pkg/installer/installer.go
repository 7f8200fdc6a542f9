// Package installer installs, updates and removes packages in the store.
package installer

import (
	"log/slog"

	"github.com/bitey-pm/bitey/pkg/metrics"
	"github.com/bitey-pm/bitey/pkg/remote"
	"github.com/bitey-pm/bitey/pkg/shell"
	"github.com/bitey-pm/bitey/pkg/source"
	"github.com/bitey-pm/bitey/pkg/store"
)

// archiveSuffix names the transient archive inside a package directory.
const archiveSuffix = ".bitey.pkg"

// Installer ties the store, the remote client and the script runner
// together. Operations on it run sequentially.
type Installer struct {
	Store  store.Store
	Client *source.Client
	Runner *shell.Runner
	// Remotes are searched, in order, to locate requested packages.
	Remotes []remote.Remote
	// InstallPrefix is exported to install scripts as ROOT. Empty means /.
	InstallPrefix string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (inst *Installer) logger() *slog.Logger {
	if inst.Logger == nil {
		return slog.Default()
	}
	return inst.Logger
}

func (inst *Installer) runner() *shell.Runner {
	if inst.Runner == nil {
		return &shell.Runner{Logger: inst.Logger}
	}
	return inst.Runner
}
