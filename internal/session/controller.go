package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gameday/event-chat/internal/chat"
	"github.com/gameday/event-chat/internal/metrics"
	"github.com/gameday/event-chat/internal/poller"
	"github.com/gameday/event-chat/internal/protocol"
	"github.com/gameday/event-chat/internal/transport"
	"github.com/gameday/event-chat/internal/visibility"
)

// Option configures a Controller.
type Option func(*Controller)

// WithMaxMessages caps the local transcript (default: 200).
func WithMaxMessages(n int) Option {
	return func(c *Controller) { c.maxMessages = n }
}

// WithPageLimit sets the page size for the initial load and every poll
// (default: 50).
func WithPageLimit(n int) Option {
	return func(c *Controller) { c.pageLimit = n }
}

// WithPollerConfig overrides the adaptive interval bounds. New panics when
// cfg fails poller.Config.Validate.
func WithPollerConfig(cfg poller.Config) Option {
	return func(c *Controller) { c.pollCfg = cfg }
}

// WithNotifier attaches a visibility source. Without one the view is
// treated as always visible.
func WithNotifier(n visibility.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller is the entry point for chat views. All methods are safe for
// concurrent use.
type Controller struct {
	transport   transport.Transport
	maxMessages int
	pageLimit   int
	pollCfg     poller.Config
	notifier    visibility.Notifier
	logger      *zap.Logger

	store *chat.Store

	mu        sync.Mutex
	cur       *active
	lastError string
	loading   bool
	interval  time.Duration
	subs      map[int]func(State)
	nextSub   int
}

// active is the per-session record. Its pointer identity is what stale
// responses are checked against.
type active struct {
	eventID     string
	scheduler   *poller.Scheduler
	unsubscribe func()
}

// New creates a Controller with no active session. It panics on an invalid
// poller configuration; validate user-supplied values first.
func New(t transport.Transport, opts ...Option) *Controller {
	c := &Controller{
		transport:   t,
		maxMessages: chat.DefaultMaxMessages,
		pageLimit:   protocol.DefaultPageLimit,
		pollCfg:     poller.DefaultConfig(),
		logger:      zap.NewNop(),
		subs:        make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.pollCfg.Validate(); err != nil {
		panic(fmt.Errorf("session: %w", err))
	}
	c.logger = c.logger.Named("session")
	c.store = chat.NewStore(c.maxMessages)
	return c
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// InitForEvent makes eventID the active chat. It is a no-op when eventID is
// already active. Otherwise the previous session is torn down, the initial
// page is loaded and polling starts. A failed initial load is logged and
// treated as an empty page; it never prevents polling.
func (c *Controller) InitForEvent(ctx context.Context, eventID string) error {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return ErrNoEvent
	}

	c.mu.Lock()
	if c.cur != nil && c.cur.eventID == eventID {
		c.mu.Unlock()
		return nil
	}
	prev := c.detachLocked()
	sess := &active{eventID: eventID}
	c.cur = sess
	c.loading = true
	c.interval = c.pollCfg.StartInterval
	c.mu.Unlock()

	c.teardown(prev)
	metrics.ActiveSessions.Inc()
	c.publish()

	log := c.logger.With(zap.String("event_id", eventID))
	page, err := c.transport.FetchSince(ctx, eventID, "", c.pageLimit)
	if err != nil {
		log.Warn("initial load failed", zap.Error(err))
		page = chat.Page{}
	}

	sched := poller.New(c.pollCfg, c.pollFunc(sess),
		poller.WithLogger(log),
		poller.WithIntervalHook(func(d time.Duration) { c.onInterval(sess, d) }),
	)

	c.mu.Lock()
	if c.cur != sess {
		c.mu.Unlock()
		log.Debug("initial load superseded")
		return nil
	}
	novel := c.store.IngestPage(page)
	c.loading = false
	sess.scheduler = sched
	c.mu.Unlock()

	countIngest(novel, len(page.Messages))
	log.Info("chat session started",
		zap.Int("messages", novel),
		zap.String("cursor", string(c.store.Cursor())),
	)

	var unsubscribe func()
	if c.notifier != nil {
		unsubscribe = c.notifier.Subscribe(func(visible bool) { c.onVisibility(sess, visible) })
		if !c.notifier.Visible() {
			sched.Suspend()
		}
	}
	sched.Start(context.WithoutCancel(ctx))

	// Destroy or another InitForEvent may have run while the scheduler
	// was starting; their teardown saw no unsubscribe hook.
	c.mu.Lock()
	if c.cur != sess {
		c.mu.Unlock()
		sched.Halt()
		if unsubscribe != nil {
			unsubscribe()
		}
		return nil
	}
	sess.unsubscribe = unsubscribe
	c.mu.Unlock()

	c.publish()
	return nil
}

// Destroy ends the active session: polling stops, local state is cleared and
// the visibility subscription is released. It is safe to call at any time.
func (c *Controller) Destroy() {
	c.mu.Lock()
	prev := c.detachLocked()
	c.mu.Unlock()

	if prev == nil {
		return
	}
	c.teardown(prev)
	c.publish()
}

// detachLocked clears the current session and returns it for teardown.
func (c *Controller) detachLocked() *active {
	prev := c.cur
	c.cur = nil
	c.store.Reset()
	c.lastError = ""
	c.loading = false
	c.interval = 0
	if prev == nil {
		return nil
	}
	// Teardown works on a copy; InitForEvent may still write to prev.
	return &active{
		eventID:     prev.eventID,
		scheduler:   prev.scheduler,
		unsubscribe: prev.unsubscribe,
	}
}

// teardown must be called without c.mu held. It does not wait for the poll
// loop to exit: subscribers run on that loop and may end the session from
// their callback. A poll still in flight is dropped by the session check in
// pollFunc.
func (c *Controller) teardown(prev *active) {
	if prev == nil {
		return
	}
	if prev.scheduler != nil {
		prev.scheduler.Halt()
	}
	if prev.unsubscribe != nil {
		prev.unsubscribe()
	}
	metrics.ActiveSessions.Dec()
	c.logger.Info("chat session ended", zap.String("event_id", prev.eventID))
}

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

// SendMessage posts text to the active event. Blank or oversized text is
// rejected without a request. On success the returned message is added to
// the transcript and polling is boosted. On failure LastError is set to the
// server's detail, or DefaultSendError, and the error is returned so the
// caller can revert any optimistic UI state.
func (c *Controller) SendMessage(ctx context.Context, text string) (chat.Message, error) {
	c.mu.Lock()
	sess := c.cur
	if sess != nil {
		c.lastError = ""
	}
	c.mu.Unlock()

	if sess == nil {
		metrics.ActionsTotal.WithLabelValues("send", "rejected").Inc()
		return chat.Message{}, ErrNoSession
	}
	if err := chat.ValidateMessage(text); err != nil {
		metrics.ActionsTotal.WithLabelValues("send", "rejected").Inc()
		return chat.Message{}, err
	}

	msg, err := c.transport.Send(ctx, sess.eventID, strings.TrimSpace(text))
	if err != nil {
		metrics.ActionsTotal.WithLabelValues("send", "failed").Inc()
		c.failAction(sess, err, DefaultSendError)
		c.logger.Warn("send failed",
			zap.String("event_id", sess.eventID),
			zap.Error(err),
		)
		return chat.Message{}, fmt.Errorf("session: send message: %w", err)
	}
	metrics.ActionsTotal.WithLabelValues("send", "ok").Inc()

	c.mu.Lock()
	if c.cur != sess {
		c.mu.Unlock()
		return msg, nil
	}
	added := c.store.IngestSingle(msg)
	sched := sess.scheduler
	c.mu.Unlock()

	if added {
		countIngest(1, 1)
	} else {
		countIngest(0, 1)
	}
	if sched != nil {
		sched.Boost()
	}
	c.publish()
	return msg, nil
}

// DeleteMessage removes one of the caller's messages. The local copy is
// removed only after the server confirms; on failure LastError is set to the
// server's detail, or DefaultDeleteError, and the message stays.
func (c *Controller) DeleteMessage(ctx context.Context, messageID string) error {
	c.mu.Lock()
	sess := c.cur
	if sess != nil {
		c.lastError = ""
	}
	c.mu.Unlock()

	if sess == nil {
		metrics.ActionsTotal.WithLabelValues("delete", "rejected").Inc()
		return ErrNoSession
	}

	if err := c.transport.Delete(ctx, messageID); err != nil {
		metrics.ActionsTotal.WithLabelValues("delete", "failed").Inc()
		c.failAction(sess, err, DefaultDeleteError)
		c.logger.Warn("delete failed",
			zap.String("event_id", sess.eventID),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return fmt.Errorf("session: delete message: %w", err)
	}
	metrics.ActionsTotal.WithLabelValues("delete", "ok").Inc()

	c.mu.Lock()
	if c.cur == sess {
		c.store.Remove(messageID)
	}
	c.mu.Unlock()

	c.publish()
	return nil
}

func (c *Controller) failAction(sess *active, err error, fallback string) {
	detail := transport.DetailOf(err)
	if detail == "" {
		detail = fallback
	}

	c.mu.Lock()
	if c.cur == sess {
		c.lastError = detail
	}
	c.mu.Unlock()
	c.publish()
}

// Boost shortens the poll interval after local activity such as typing.
func (c *Controller) Boost() {
	if sched := c.scheduler(); sched != nil {
		sched.Boost()
	}
}

// Throttle lengthens the poll interval for an explicitly backgrounded view.
func (c *Controller) Throttle() {
	if sched := c.scheduler(); sched != nil {
		sched.Throttle()
	}
}

func (c *Controller) scheduler() *poller.Scheduler {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return nil
	}
	return c.cur.scheduler
}

// ---------------------------------------------------------------------------
// Polling
// ---------------------------------------------------------------------------

func (c *Controller) pollFunc(sess *active) poller.FetchFunc {
	return func(ctx context.Context) (int, error) {
		c.mu.Lock()
		if c.cur != sess {
			c.mu.Unlock()
			return 0, nil
		}
		cursor := c.store.Cursor()
		c.mu.Unlock()

		page, err := c.transport.FetchSince(ctx, sess.eventID, cursor, c.pageLimit)
		if err != nil {
			return 0, err
		}

		c.mu.Lock()
		if c.cur != sess {
			c.mu.Unlock()
			c.logger.Debug("dropping stale poll response",
				zap.String("event_id", sess.eventID),
				zap.Int("messages", len(page.Messages)),
			)
			return 0, nil
		}
		novel := c.store.IngestPage(page)
		moved := c.store.Cursor() != cursor
		c.mu.Unlock()

		countIngest(novel, len(page.Messages))
		if novel > 0 || moved {
			c.publish()
		}
		return novel, nil
	}
}

func (c *Controller) onInterval(sess *active, d time.Duration) {
	c.mu.Lock()
	if c.cur != sess || c.interval == d {
		c.mu.Unlock()
		return
	}
	c.interval = d
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) onVisibility(sess *active, visible bool) {
	c.mu.Lock()
	if c.cur != sess || sess.scheduler == nil {
		c.mu.Unlock()
		return
	}
	sched := sess.scheduler
	c.mu.Unlock()

	if visible {
		sched.Resume()
	} else {
		sched.Suspend()
	}
	c.logger.Debug("visibility changed",
		zap.String("event_id", sess.eventID),
		zap.Bool("visible", visible),
	)
}

func countIngest(novel, offered int) {
	if novel > 0 {
		metrics.MessagesIngested.WithLabelValues("novel").Add(float64(novel))
	}
	if dup := offered - novel; dup > 0 {
		metrics.MessagesIngested.WithLabelValues("duplicate").Add(float64(dup))
	}
}

// ---------------------------------------------------------------------------
// Observation
// ---------------------------------------------------------------------------

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn for state changes and immediately delivers the
// current state. Callbacks run synchronously on the goroutine that caused the
// change, often the poll loop, and must not block. They may call back into
// the Controller, including Destroy and InitForEvent. The returned function removes the subscription.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	st := c.snapshotLocked()
	c.mu.Unlock()

	fn(st)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *Controller) snapshotLocked() State {
	st := State{
		Messages:     c.store.Messages(),
		Cursor:       c.store.Cursor(),
		PollInterval: c.interval,
		LastError:    c.lastError,
		Loading:      c.loading,
	}
	if c.cur != nil {
		st.EventID = c.cur.eventID
	}
	return st
}

func (c *Controller) publish() {
	c.mu.Lock()
	if len(c.subs) == 0 {
		c.mu.Unlock()
		return
	}
	st := c.snapshotLocked()
	fns := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
