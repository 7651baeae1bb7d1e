package crates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ippclub/crates-mcp/pkg/index"
	"go.uber.org/zap"
)

// IndexState is the availability of the local index. It is decided once,
// while the client is constructed, and never re-evaluated.
type IndexState int

const (
	IndexUninitialized IndexState = iota
	IndexAttempting
	IndexAttemptingRecovery
	IndexAvailable
	IndexUnavailable
)

func (s IndexState) String() string {
	switch s {
	case IndexUninitialized:
		return "uninitialized"
	case IndexAttempting:
		return "attempting"
	case IndexAttemptingRecovery:
		return "attempting_recovery"
	case IndexAvailable:
		return "available"
	case IndexUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Index is the part of the local index the client reads.
type Index interface {
	Crate(name string) (*index.Crate, error)
}

// IndexOpener opens the local index.
type IndexOpener func() (Index, error)

// OpenIndexAt returns an IndexOpener for the git clone at path.
func OpenIndexAt(path string) IndexOpener {
	return func() (Index, error) {
		repo, err := index.Open(path)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
}

// indexInit runs the one-shot availability state machine.
type indexInit struct {
	open      IndexOpener
	backoff   time.Duration
	lookupEnv index.LookupEnv
	exists    func(path string) bool
	logger    *zap.Logger
}

// indexOutcome is the immutable result of indexInit.run.
type indexOutcome struct {
	index Index
	state IndexState
	trace []IndexState
	cause error
}

func (in indexInit) run(ctx context.Context) indexOutcome {
	out := indexOutcome{trace: []IndexState{IndexUninitialized}}
	move := func(s IndexState) {
		out.state = s
		out.trace = append(out.trace, s)
	}

	move(IndexAttempting)
	idx, err := in.open()
	if err == nil {
		in.logger.Info("initialized crates.io git index")
		out.index = idx
		move(IndexAvailable)
		return out
	}

	in.logger.Warn("failed to initialize crates.io git index", zap.Error(err))
	if !isCorruption(err) {
		return in.giveUp(out, err, move)
	}

	move(IndexAttemptingRecovery)
	in.logger.Info("attempting to recover from potential git index corruption")

	if root, ok := index.RegistryRoot(in.lookupEnv, in.exists); ok {
		candidate := filepath.Join(root, "index", index.DirName)
		if in.exists(candidate) {
			in.logger.Warn("found potentially corrupted index; if problems persist, delete this directory and restart",
				zap.String("path", candidate),
			)
		}
	}

	timer := time.NewTimer(in.backoff)
	select {
	case <-ctx.Done():
		timer.Stop()
		return in.giveUp(out, ctx.Err(), move)
	case <-timer.C:
	}

	idx, err = in.open()
	if err != nil {
		in.logger.Error("index retry failed", zap.Error(err))
		return in.giveUp(out, err, move)
	}

	in.logger.Info("initialized crates.io git index on retry")
	out.index = idx
	move(IndexAvailable)
	return out
}

func (in indexInit) giveUp(out indexOutcome, cause error, move func(IndexState)) indexOutcome {
	in.logger.Warn("git index unavailable; dependency lookups are disabled, other tools keep working over HTTP")
	out.cause = cause
	move(IndexUnavailable)
	return out
}

// isCorruption reports whether err points at a damaged repository rather than
// a missing one.
func isCorruption(err error) bool {
	if errors.Is(err, index.ErrNotExist) {
		return false
	}
	if errors.Is(err, index.ErrCorrupt) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "git")
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
