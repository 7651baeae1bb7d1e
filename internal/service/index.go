package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/ippclub/crates-mcp/internal/config"
	"github.com/ippclub/crates-mcp/internal/crates"
	"github.com/ippclub/crates-mcp/internal/model"
	"github.com/ippclub/crates-mcp/internal/store"
	"github.com/ippclub/crates-mcp/pkg/index"
	"go.uber.org/zap"
)

// Event states written besides the crates.IndexState names.
const (
	StateUpdated      = "updated"
	StateUpdateFailed = "update_failed"
)

// UpdateSession is the session id stamped on events written by Update.
const UpdateSession = "index-update"

// Mirror reports how the local index settled.
type Mirror interface {
	IndexState() crates.IndexState
	IndexTrace() []crates.IndexState
	IndexPath() string
	IndexCause() error
}

// Report describes the local index for the status command and endpoint.
type Report struct {
	State     string              `json:"state"`
	Trace     []string            `json:"trace"`
	Path      string              `json:"path"`
	Error     string              `json:"error,omitempty"`
	LastEvent *model.DBIndexEvent `json:"last_event,omitempty"`
}

// IndexService updates the local crates.io index and keeps its history
type IndexService struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.SQLiteStore // nil when the journal is disabled
	mu     sync.Mutex
}

// NewIndexService creates a new IndexService instance
func NewIndexService(cfg *config.Config, logger *zap.Logger, st *store.SQLiteStore) *IndexService {
	return &IndexService{
		cfg:    cfg,
		logger: logger,
		store:  st,
	}
}

// Path is the configured index location, or cargo's default clone.
func (s *IndexService) Path() string {
	if s.cfg.Index.Path != "" {
		return s.cfg.Index.Path
	}
	return index.DefaultPath(os.LookupEnv)
}

// Update clones or fetches the index. Concurrent calls are serialized.
func (s *IndexService) Update(ctx context.Context, progress io.Writer) (plumbing.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path()
	s.logger.Info("updating crates.io git index",
		zap.String("path", path),
		zap.String("url", s.cfg.Index.URL),
		zap.String("branch", s.cfg.Index.Branch),
	)

	hash, err := index.Update(ctx, index.UpdateOptions{
		Path:     path,
		URL:      s.cfg.Index.URL,
		Branch:   s.cfg.Index.Branch,
		Progress: progress,
	}, s.logger)

	event := &model.DBIndexEvent{
		SessionID: UpdateSession,
		State:     StateUpdated,
		Path:      path,
		Detail:    hash.String(),
	}
	if err != nil {
		event.State = StateUpdateFailed
		event.Detail = err.Error()
	}
	s.recordEvent(event)

	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to update index: %w", err)
	}
	return hash, nil
}

// Record stores how index initialization ended for a session
func (s *IndexService) Record(sessionID string, m Mirror) {
	detail := ""
	if cause := m.IndexCause(); cause != nil {
		detail = cause.Error()
	}
	s.recordEvent(&model.DBIndexEvent{
		SessionID: sessionID,
		State:     m.IndexState().String(),
		Path:      m.IndexPath(),
		Detail:    detail,
	})
}

// Report describes m together with the most recent journaled event.
func (s *IndexService) Report(m Mirror) (*Report, error) {
	trace := m.IndexTrace()
	report := &Report{
		State: m.IndexState().String(),
		Trace: make([]string, len(trace)),
		Path:  m.IndexPath(),
	}
	for i, st := range trace {
		report.Trace[i] = st.String()
	}
	if cause := m.IndexCause(); cause != nil {
		report.Error = cause.Error()
	}

	if s.store != nil {
		event, err := s.store.LatestIndexEvent()
		if err != nil {
			return nil, err
		}
		report.LastEvent = event
	}
	return report, nil
}

// Status settles the index exactly as serve does and reports the outcome.
// LastEvent is the event seen before this check.
func (s *IndexService) Status(ctx context.Context, sessionID string) (*Report, error) {
	client, err := crates.New(ctx, s.cfg, nil, s.logger)
	if err != nil {
		return nil, err
	}

	report, err := s.Report(client)
	if err != nil {
		return nil, err
	}
	s.Record(sessionID, client)
	return report, nil
}

func (s *IndexService) recordEvent(event *model.DBIndexEvent) {
	if s.store == nil {
		return
	}
	if err := s.store.RecordIndexEvent(event); err != nil {
		s.logger.Error("failed to record index event",
			zap.String("state", event.State),
			zap.Error(err),
		)
	}
}
