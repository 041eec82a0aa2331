// Package flow implements the per-conversation dialog engine and the idle
// reaper that discards abandoned sessions.
//
// Each inbound message is handled against a copy of the stored session. The
// copy is committed only when the step completes and its reply is sent, so an
// external failure leaves the conversation exactly where it was.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/zailonsoft/carbot/internal/catalog"
	"github.com/zailonsoft/carbot/internal/config"
	"github.com/zailonsoft/carbot/internal/intent"
	"github.com/zailonsoft/carbot/internal/media"
	"github.com/zailonsoft/carbot/internal/metrics"
	"github.com/zailonsoft/carbot/internal/models"
	"github.com/zailonsoft/carbot/internal/store"
	"github.com/zailonsoft/carbot/internal/textnorm"
)

// Sender is the outbound half of a chat channel.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendMedia(ctx context.Context, to string, m models.Media, caption string) error
	SetComposing(ctx context.Context, to string) error
}

// Dependency names used in logs and the external-failure metric.
const (
	depCatalog  = "catalog"
	depClients  = "clients"
	depChannel  = "channel"
	depDownload = "download"
	depMedia    = "media"
	depStaff    = "staff"
)

// externalError marks a failed call to a collaborator.
type externalError struct {
	dep string
	err error
}

func (e *externalError) Error() string { return e.dep + ": " + e.err.Error() }

func (e *externalError) Unwrap() error { return e.err }

func external(dep string, err error) error {
	return &externalError{dep: dep, err: err}
}

// Opts holds the optional collaborators of an Engine.
type Opts struct {
	Catalog  catalog.Source
	Images   catalog.ImageFetcher
	Clients  catalog.Clients
	Media    media.Store
	Throttle store.Throttle
	Reports  store.ReportLog
	Metrics  *metrics.Metrics
	Now      func() time.Time
	Location *time.Location
}

// Option configures an Engine.
type Option func(*Opts)

// WithCatalog sets the vehicle source.
func WithCatalog(src catalog.Source) Option {
	return func(o *Opts) { o.Catalog = src }
}

// WithImages sets the fetcher used for vehicle photos in detail replies.
func WithImages(f catalog.ImageFetcher) Option {
	return func(o *Opts) { o.Images = f }
}

// WithClients sets the client-record service.
func WithClients(c catalog.Clients) Option {
	return func(o *Opts) { o.Clients = c }
}

// WithMedia sets where uploaded documents and photos are stored.
func WithMedia(m media.Store) Option {
	return func(o *Opts) { o.Media = m }
}

// WithThrottle sets the welcome throttle.
func WithThrottle(t store.Throttle) Option {
	return func(o *Opts) { o.Throttle = t }
}

// WithReportLog records every delivered staff report.
func WithReportLog(l store.ReportLog) Option {
	return func(o *Opts) { o.Reports = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// WithLocation sets the time zone of report timestamps.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

type emptyCatalog struct{}

func (emptyCatalog) ListVehicles(context.Context) ([]models.Vehicle, error) { return nil, nil }

// Engine runs the dialog state machine. It is safe for concurrent use across
// conversations; messages of one conversation must be serialized by the caller.
type Engine struct {
	sender     Sender
	sessions   *store.SessionStore
	profile    *config.Profile
	msgs       config.Messages
	classifier *intent.Classifier
	normalizer *textnorm.Normalizer
	catalog    catalog.Source
	images     catalog.ImageFetcher
	clients    catalog.Clients
	media      media.Store
	throttle   store.Throttle
	reports    store.ReportLog
	metrics    *metrics.Metrics
	now        func() time.Time
	loc        *time.Location
	timeout    time.Duration
	sleep      func(ctx context.Context, d time.Duration)
}

// NewEngine creates an Engine replying through sender and keeping sessions in
// sessions. A nil profile uses config.Default.
func NewEngine(sender Sender, sessions *store.SessionStore, profile *config.Profile, opts ...Option) *Engine {
	if profile == nil {
		profile = config.Default()
	}
	o := Opts{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Catalog == nil {
		o.Catalog = emptyCatalog{}
	}
	if o.Clients == nil {
		o.Clients = catalog.NopClients{}
	}
	if o.Throttle == nil {
		o.Throttle = store.NewMemoryThrottle(profile.WelcomeCooldown)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	timeout := profile.CallTimeout
	if timeout <= 0 {
		timeout = config.DefaultCallTimeout
	}

	overrides := make(map[models.Intent][]string, len(profile.Keywords))
	for name, kws := range profile.Keywords {
		overrides[models.Intent(name)] = kws
	}

	return &Engine{
		sender:     sender,
		sessions:   sessions,
		profile:    profile,
		msgs:       profile.Messages,
		classifier: intent.New(intent.WithOverrides(intent.DefaultRules(), overrides)),
		normalizer: textnorm.NewNormalizer(profile.Synonyms),
		catalog:    o.Catalog,
		images:     o.Images,
		clients:    o.Clients,
		media:      o.Media,
		throttle:   o.Throttle,
		reports:    o.Reports,
		metrics:    o.Metrics,
		now:        o.Now,
		loc:        o.Location,
		timeout:    timeout,
		sleep:      sleepContext,
	}
}

// bounded derives the context of a single collaborator call.
func (e *Engine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeout)
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// reply is the single outbound message produced by a turn.
type reply struct {
	text  string
	media *models.Media
}

// turn is the working state of one inbound message.
type turn struct {
	msg       models.InboundMessage
	sess      *models.Session
	raw       string
	text      string
	now       time.Time
	reply     reply
	completed bool
	// greeted is set once the throttle recorded this turn's welcome.
	greeted bool
}

func (t *turn) say(text string) {
	t.reply = reply{text: text}
}

func (t *turn) show(m models.Media, caption string) {
	t.reply = reply{text: caption, media: &m}
}

// Handle processes one inbound message. Expected failures are answered with
// the retry message and reported as handled; only a failure to reach the
// customer at all is returned.
func (e *Engine) Handle(ctx context.Context, msg models.InboundMessage) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine panic recovered", "conversation", msg.ConversationID, "panic", r, "stack", string(debug.Stack()))
			err = e.send(ctx, msg.ConversationID, reply{text: e.msgs.Apology}, "apology")
		}
		e.metrics.ObserveHandle(time.Since(start).Seconds())
	}()

	if msg.ConversationID == "" {
		return errors.New("flow: inbound message without conversation id")
	}
	now := e.now()
	sess := e.sessions.GetOrCreate(msg.ConversationID, now)
	from := sess.Step
	t := &turn{
		msg:  msg,
		sess: sess,
		raw:  strings.TrimSpace(msg.Text),
		text: e.normalizer.Normalize(msg.Text),
		now:  now,
	}

	if err := e.step(ctx, t); err != nil {
		return e.fail(ctx, t, err)
	}

	if t.completed {
		e.sessions.Delete(sess.ID)
		e.metrics.ObserveTransition(string(from), string(models.StepCompleted))
		e.metrics.SetActiveSessions(e.sessions.Len())
		slog.Info("Engine conversation completed", "conversation", sess.ID, "intent", sess.Intent)
		return e.send(ctx, sess.ID, t.reply, "closing")
	}

	if err := e.send(ctx, sess.ID, t.reply, "reply"); err != nil {
		return e.fail(ctx, t, external(depChannel, err))
	}
	sess.LastInteraction = now
	e.sessions.Set(sess)
	e.metrics.ObserveTransition(string(from), string(sess.Step))
	e.metrics.SetActiveSessions(e.sessions.Len())
	slog.Debug("Engine step committed", "conversation", sess.ID, "from", from, "to", sess.Step, "intent", sess.Intent)
	return nil
}

// fail answers a failed turn with the retry message without committing anything.
func (e *Engine) fail(ctx context.Context, t *turn, err error) error {
	dep := "internal"
	var ext *externalError
	if errors.As(err, &ext) {
		dep = ext.dep
	}
	slog.Error("Engine external call failed", "conversation", t.sess.ID, "step", t.sess.Step, "dependency", dep, "error", err)
	e.metrics.ObserveExternalFailure(dep)
	e.forgetGreeting(ctx, t)
	if sendErr := e.send(ctx, t.sess.ID, reply{text: e.msgs.Retry}, "retry"); sendErr != nil {
		return fmt.Errorf("failed to send retry message: %w", sendErr)
	}
	return nil
}

// forgetGreeting drops the throttle entry of a welcome that was never
// delivered, so the next greeting gets the full welcome again.
func (e *Engine) forgetGreeting(ctx context.Context, t *turn) {
	if !t.greeted {
		return
	}
	t.greeted = false
	callCtx, cancel := e.bounded(ctx)
	defer cancel()
	if err := e.throttle.Forget(callCtx, t.sess.ID); err != nil {
		slog.Warn("Engine failed to reset welcome throttle", "conversation", t.sess.ID, "error", err)
		e.metrics.ObserveExternalFailure("throttle")
	}
}

// send shows the typing indicator, waits the configured delay and delivers r.
func (e *Engine) send(ctx context.Context, to string, r reply, kind string) error {
	if r.text == "" && r.media == nil {
		return nil
	}
	composeCtx, cancel := e.bounded(ctx)
	if err := e.sender.SetComposing(composeCtx, to); err != nil {
		slog.Debug("Engine composing indicator failed", "conversation", to, "error", err)
	}
	cancel()
	e.sleep(ctx, e.profile.TypingDelay)

	sendCtx, cancel := e.bounded(ctx)
	defer cancel()
	var err error
	if r.media != nil {
		err = e.sender.SendMedia(sendCtx, to, *r.media, r.text)
	} else {
		err = e.sender.SendMessage(sendCtx, to, r.text)
	}
	e.metrics.ObserveOutbound(kind, err)
	if err != nil {
		slog.Error("Engine failed to send message", "conversation", to, "kind", kind, "error", err)
	}
	return err
}

// step routes the turn to the handler of the current state.
func (e *Engine) step(ctx context.Context, t *turn) error {
	s := t.sess.Step
	if s != models.StepIdle && s != models.StepAwaitingIntent && intent.IsReset(t.text) {
		e.decline(t)
		return nil
	}

	switch s {
	case models.StepIdle:
		return e.stepIdle(ctx, t)
	case models.StepAwaitingIntent:
		return e.stepIntent(ctx, t)
	case models.StepAwaitingVehicle:
		return e.stepVehicle(ctx, t)
	case models.StepAwaitingConfirmation:
		return e.stepConfirmation(ctx, t)
	case models.StepAwaitingDownPayment:
		return e.stepDownPayment(t)
	case models.StepAwaitingInstallments:
		return e.stepInstallments(t)
	case models.StepAwaitingIDNumber:
		return e.stepIDNumber(t)
	case models.StepAwaitingBirthDate:
		return e.stepBirthDate(t)
	case models.StepAwaitingDocuments:
		return e.stepDocuments(ctx, t)
	case models.StepAwaitingEmployment:
		return e.stepEmployment(t)
	case models.StepAwaitingTradeModel:
		return e.stepTradeModel(t)
	case models.StepAwaitingTradeYear:
		return e.stepTradeYear(t)
	case models.StepAwaitingTradeCondition:
		return e.stepTradeCondition(t)
	case models.StepAwaitingTradePhoto:
		return e.stepTradePhoto(ctx, t)
	case models.StepAwaitingVisitDate:
		return e.stepVisitDate(t)
	case models.StepAwaitingVisitTime:
		return e.stepVisitTime(t)
	case models.StepAwaitingVisitName:
		return e.stepVisitName(ctx, t)
	default:
		slog.Warn("Engine session in unknown step, resetting", "conversation", t.sess.ID, "step", s)
		t.sess.Step = models.StepAwaitingIntent
		t.say(e.msgs.Menu)
		return nil
	}
}

// invalid keeps the current step and reprompts.
func (e *Engine) invalid(t *turn, prompt string) error {
	e.metrics.ObserveInvalid(string(t.sess.Step))
	slog.Debug("Engine invalid answer", "conversation", t.sess.ID, "step", t.sess.Step)
	t.say(prompt)
	return nil
}

// decline archives the active branch and returns to the intent menu.
func (e *Engine) decline(t *turn) {
	t.sess.Archive(t.now)
	t.sess.Step = models.StepAwaitingIntent
	t.say(e.msgs.Declined)
}

func (e *Engine) vehicles(ctx context.Context) ([]models.Vehicle, error) {
	callCtx, cancel := e.bounded(ctx)
	defer cancel()
	vs, err := e.catalog.ListVehicles(callCtx)
	if err != nil {
		return nil, external(depCatalog, err)
	}
	return vs, nil
}

func (e *Engine) list(vs []models.Vehicle) string {
	return catalog.List(vs, e.profile.CatalogLimit)
}

func (e *Engine) expand(tmpl string, vars ...string) string {
	base := []string{"bot", e.profile.BotName, "dealership", e.profile.Dealership, "contact", e.profile.HumanContact}
	return config.Expand(tmpl, append(base, vars...)...)
}
