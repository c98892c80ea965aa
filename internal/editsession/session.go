package editsession

import (
	"context"
	stdErrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"devunity/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type State int

const (
	Idle State = iota
	Connecting
	Syncing
	Bound
	Autosaving
	Disconnecting
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Syncing:
		return "syncing"
	case Bound:
		return "bound"
	case Autosaving:
		return "autosaving"
	case Disconnecting:
		return "disconnecting"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

const (
	DefaultDebounce = 1500 * time.Millisecond
	requestTimeout  = 5 * time.Second
)

var ErrNotBound = stdErrors.New("edit session is not bound")

type Config struct {
	DocumentID uint64
	// Debounce is the quiet period before an autosave; zero means DefaultDebounce.
	Debounce time.Duration
	// Source tags the ops this session submits; a random one is used when empty.
	Source string
}

// Session binds one editor to one shared document.
type Session struct {
	cfg     Config
	api     API
	channel Channel
	ot      OTConnection
	editor  Editor
	log     *zap.Logger

	mu            sync.Mutex
	state         State
	doc           OTDocument
	joined        bool
	permission    domain.Permission
	lastPersisted string
	timer         *time.Timer
	pending       bool

	applyingRemote atomic.Bool
}

// New builds an idle session. channel may be nil when presence and chat
// are not wanted.
func New(cfg Config, api API, channel Channel, ot OTConnection, editor Editor, log *zap.Logger) *Session {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Source == "" {
		cfg.Source = uuid.NewString()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		cfg:     cfg,
		api:     api,
		channel: channel,
		ot:      ot,
		editor:  editor,
		log:     log.With(zap.Uint64("document_id", cfg.DocumentID), zap.String("source", cfg.Source)),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Permission() domain.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Open loads the document, joins its room and binds the editor to the OT
// document. Any failure tears the session down and leaves it Failed.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return stdErrors.New("edit session already opened")
	}
	s.state = Connecting
	s.mu.Unlock()

	state, err := s.api.GetDocument(ctx, s.cfg.DocumentID)
	if err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	s.permission = state.Permission
	s.lastPersisted = state.Content
	s.mu.Unlock()

	if s.channel != nil {
		if err := s.channel.JoinDocument(ctx, s.cfg.DocumentID); err != nil {
			return s.fail(err)
		}
		s.mu.Lock()
		s.joined = true
		s.mu.Unlock()
	}

	s.setState(Syncing)

	doc := s.ot.Document(s.cfg.DocumentID)
	if err := doc.Subscribe(ctx); err != nil {
		return s.fail(err)
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()

	content := state.Content
	if !doc.HasType() {
		if err := doc.Create(ctx, content); err != nil {
			return s.fail(err)
		}
	} else {
		// shared state wins over the stored copy
		content = doc.Content()
	}

	s.applyRemote(content)
	doc.OnOp(s.handleRemote)
	s.editor.OnChange(s.handleLocal)

	s.setState(Bound)
	s.log.Debug("edit session bound")
	return nil
}

func (s *Session) fail(err error) error {
	s.log.Warn("edit session failed", zap.Error(err))
	teardownErr := s.teardown()
	s.setState(Failed)
	return stdErrors.Join(err, teardownErr)
}

func (s *Session) bound() (OTDocument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Bound && s.state != Autosaving {
		return nil, false
	}
	return s.doc, true
}

func (s *Session) handleLocal(content string) {
	if s.applyingRemote.Load() {
		return
	}
	doc, ok := s.bound()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := doc.SubmitReplace(ctx, content, s.cfg.Source); err != nil {
		s.log.Warn("submit op failed", zap.Error(err))
	}
	s.scheduleAutosave()
}

func (s *Session) handleRemote(op Op) {
	if op.Source == s.cfg.Source {
		return
	}
	if _, ok := s.bound(); !ok {
		return
	}
	s.applyRemote(op.Content)
	s.scheduleAutosave()
}

// applyRemote writes into the editor without echoing the change back out.
func (s *Session) applyRemote(content string) {
	if s.editor.Value() == content {
		return
	}
	s.applyingRemote.Store(true)
	defer s.applyingRemote.Store(false)
	s.editor.SetValue(content)
}

func (s *Session) scheduleAutosave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.Debounce, s.autosave)
}

// autosave persists the editor content. A timer that fires while a save is
// in flight marks it pending; the newer content is saved once that save ends.
func (s *Session) autosave() {
	for {
		s.mu.Lock()
		if s.state == Autosaving {
			s.pending = true
			s.mu.Unlock()
			return
		}
		if s.state != Bound || !s.permission.Allows(domain.PermissionWrite) {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		content := s.editor.Value()

		s.mu.Lock()
		if s.state != Bound || content == s.lastPersisted {
			s.mu.Unlock()
			return
		}
		s.state = Autosaving
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		err := s.api.UpdateContent(ctx, s.cfg.DocumentID, content)
		cancel()

		s.mu.Lock()
		if err != nil {
			s.log.Warn("autosave failed", zap.Error(err))
		} else {
			s.lastPersisted = content
		}
		if s.state == Autosaving {
			s.state = Bound
		}
		again := s.pending && s.state == Bound
		s.pending = false
		s.mu.Unlock()

		if !again {
			return
		}
	}
}

// Save records an explicit version of the editor's current content.
func (s *Session) Save(ctx context.Context, message string) (*domain.Version, error) {
	if _, ok := s.bound(); !ok {
		return nil, ErrNotBound
	}

	content := s.editor.Value()
	v, err := s.api.SaveVersion(ctx, s.cfg.DocumentID, message, &content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastPersisted = content
	s.mu.Unlock()
	return v, nil
}

// Restore rolls the document back to a version and pushes the restored
// content to every participant.
func (s *Session) Restore(ctx context.Context, versionID uint64) (*Restored, error) {
	doc, ok := s.bound()
	if !ok {
		return nil, ErrNotBound
	}

	restored, err := s.api.RestoreVersion(ctx, s.cfg.DocumentID, versionID)
	if err != nil {
		return nil, err
	}
	content := restored.Document.Content

	s.mu.Lock()
	s.lastPersisted = content
	s.mu.Unlock()

	s.applyRemote(content)
	if err := doc.SubmitReplace(ctx, content, s.cfg.Source); err != nil {
		return restored, err
	}
	return restored, nil
}

func (s *Session) Versions(ctx context.Context) ([]domain.Version, error) {
	return s.api.ListVersions(ctx, s.cfg.DocumentID)
}

func (s *Session) Messages(ctx context.Context, limit int) ([]domain.Message, error) {
	return s.api.ListMessages(ctx, s.cfg.DocumentID, limit)
}

func (s *Session) SendMessage(ctx context.Context, content string) error {
	if s.channel == nil {
		return stdErrors.New("edit session has no channel")
	}
	if _, ok := s.bound(); !ok {
		return ErrNotBound
	}
	return s.channel.SendMessage(ctx, s.cfg.DocumentID, content)
}

// Close stops the session. Pending autosaves are dropped.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == Closed || s.state == Idle || s.state == Failed {
		s.state = Closed
		s.mu.Unlock()
		return nil
	}
	s.state = Disconnecting
	s.mu.Unlock()

	err := s.teardown()
	s.setState(Closed)
	return err
}

func (s *Session) teardown() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = false
	doc, joined := s.doc, s.joined
	s.doc, s.joined = nil, false
	s.mu.Unlock()

	var errs []error
	if doc != nil {
		errs = append(errs, doc.Unsubscribe())
	}
	if s.channel != nil {
		if joined {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			errs = append(errs, s.channel.LeaveDocument(ctx, s.cfg.DocumentID))
			cancel()
		}
		errs = append(errs, s.channel.Close())
	}
	return stdErrors.Join(errs...)
}
