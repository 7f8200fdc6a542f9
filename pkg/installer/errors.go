package installer

import (
	"errors"
	"fmt"
)

var (
	ErrStoreWriteFailed      = errors.New("store write failed")
	ErrArchiveDownloadFailed = errors.New("archive download failed")
	ErrArchiveExtractFailed  = errors.New("archive extraction failed")
	ErrInstallScriptFailed   = errors.New("install script failed")
	ErrNotInstalled          = errors.New("package is not installed")
	ErrNotFound              = errors.New("package not found in store")
	ErrAborted               = errors.New("aborted")
)

// Stage names the step of an operation that failed.
type Stage string

const (
	StageResolve    Stage = "resolve"
	StageDependency Stage = "dependency"
	StageLock       Stage = "lock"
	StageStore      Stage = "store"
	StageDownload   Stage = "download"
	StageExtract    Stage = "extract"
	StageScript     Stage = "script"
	StageReceipt    Stage = "receipt"
)

// StageError reports which package failed, at which stage, and why.
type StageError struct {
	Package string
	Stage   Stage
	// Kind is one of the package's sentinel errors, or nil when Err already
	// carries a sentinel from another package.
	Kind error
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Package, e.Stage, e.cause())
}

func (e *StageError) cause() error {
	switch {
	case e.Kind == nil:
		return e.Err
	case e.Err == nil:
		return e.Kind
	default:
		return fmt.Errorf("%w: %w", e.Kind, e.Err)
	}
}

func (e *StageError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func stageError(pkg string, stage Stage, kind, err error) *StageError {
	return &StageError{Package: pkg, Stage: stage, Kind: kind, Err: err}
}

// asStageError returns err as a *StageError, attributing anything else to
// pkg at stage.
func asStageError(pkg string, stage Stage, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return stageError(pkg, stage, nil, err)
}
