package bot

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/kvchat/internal/conversation"
	"github.com/antoniostano/kvchat/internal/events"
	"github.com/antoniostano/kvchat/internal/history"
	"github.com/antoniostano/kvchat/internal/llm"
	"github.com/antoniostano/kvchat/internal/observability"
	"github.com/antoniostano/kvchat/internal/policy"
	"github.com/antoniostano/kvchat/internal/reliability"
	"github.com/antoniostano/kvchat/internal/telegram"
)

// Sender delivers messages back to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

type Outcome string

const (
	OutcomeIgnored             Outcome = "ignored"
	OutcomeReset               Outcome = "reset"
	OutcomeResetFailed         Outcome = "reset_failed"
	OutcomeReplied             Outcome = "replied"
	OutcomeConfigError         Outcome = "config_error"
	OutcomeBusy                Outcome = "busy"
	OutcomeStoreFailed         Outcome = "store_failed"
	OutcomeModelFailed         Outcome = "model_failed"
	OutcomeSerializationFailed Outcome = "serialization_failed"
	OutcomeFailed              Outcome = "failed"
)

// Result reports how one update was handled.
type Result struct {
	UpdateID int64
	ChatID   string
	Outcome  Outcome
	Reply    string
	Err      error
}

const (
	defaultTypingTimeout = 3 * time.Second
	defaultReplyTimeout  = 10 * time.Second
	previewRunes         = 80
)

// Orchestrator runs the per-update flow: classify, then either reset the chat or
// fetch history, complete, store and reply. It keeps no state between updates.
type Orchestrator struct {
	store    history.Store
	locker   history.Locker
	model    llm.Client
	sender   Sender
	metrics  *observability.Metrics
	events   *events.Hub
	provider string
	opts     Options
}

func NewOrchestrator(
	store history.Store,
	locker history.Locker,
	model llm.Client,
	sender Sender,
	metrics *observability.Metrics,
	hub *events.Hub,
	opts Options,
) *Orchestrator {
	opts.Replies = opts.Replies.withDefaults()
	if opts.Persona.Instruction == "" {
		opts.Persona.Instruction = DefaultPersonaInstruction
	}
	if opts.Persona.Acknowledgement == "" {
		opts.Persona.Acknowledgement = DefaultPersonaAcknowledgement
	}
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = defaultTypingTimeout
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = defaultReplyTimeout
	}
	if store == nil {
		store = history.Unavailable{}
	}
	if model == nil {
		model = llm.Unavailable{}
	}
	return &Orchestrator{
		store:    store,
		locker:   locker,
		model:    model,
		sender:   sender,
		metrics:  metrics,
		events:   hub,
		provider: llm.ProviderName(model),
		opts:     opts,
	}
}

// HandleUpdate processes one webhook update. It never panics on dependency failures and
// never returns an error: every failure becomes a reply to the chat and a Result outcome.
func (o *Orchestrator) HandleUpdate(ctx context.Context, u telegram.Update) Result {
	started := time.Now()
	msg := u.TextMessage()
	if msg == nil {
		res := Result{UpdateID: u.UpdateID, Outcome: OutcomeIgnored}
		o.record(ctx, res, "", started)
		return res
	}

	logger := loggerFrom(ctx).With().
		Int64("update_id", u.UpdateID).
		Str("chat_id", msg.ChatKey()).
		Logger()
	ctx = logger.WithContext(ctx)

	var res Result
	if cmd, ok := msg.Command(); ok && isResetCommand(cmd) {
		res = o.reset(ctx, msg)
	} else {
		res = o.dispatch(ctx, msg)
	}
	res.UpdateID = u.UpdateID

	if res.Reply != "" {
		o.reply(ctx, msg.Chat.ID, res.Reply)
	}
	o.record(ctx, res, msg.Text, started)
	return res
}

func isResetCommand(cmd string) bool {
	switch cmd {
	case "restart", "reset", "start":
		return true
	default:
		return false
	}
}

func (o *Orchestrator) reset(ctx context.Context, msg *telegram.Message) Result {
	chatID := msg.ChatKey()
	res := Result{ChatID: chatID}

	release, err := o.acquire(ctx, chatID)
	if err != nil {
		res.Outcome, res.Reply, res.Err = OutcomeResetFailed, o.opts.Replies.Degraded, err
		return res
	}
	defer release()

	if err := o.store.Clear(ctx, chatID); err != nil {
		o.countStoreError("clear", err)
		res.Outcome, res.Reply, res.Err = OutcomeResetFailed, o.opts.Replies.Degraded, err
		return res
	}
	res.Outcome, res.Reply = OutcomeReset, o.opts.Replies.Reset
	return res
}

func (o *Orchestrator) dispatch(ctx context.Context, msg *telegram.Message) Result {
	chatID := msg.ChatKey()

	o.signalTyping(ctx, msg.Chat.ID)

	if err := o.unavailable(ctx); err != nil {
		return o.fail(chatID, err)
	}

	release, err := o.acquire(ctx, chatID)
	if err != nil {
		return o.fail(chatID, err)
	}
	defer release()

	h, err := o.store.Fetch(ctx, chatID)
	if err != nil {
		o.countStoreError("fetch", err)
		return o.fail(chatID, err)
	}

	if len(h) == 0 && o.opts.Persona.Enabled {
		h = h.Append(
			conversation.UserTurn(o.opts.Persona.Instruction),
			conversation.AssistantTurn(o.opts.Persona.Acknowledgement),
		)
	}
	pinned := 0
	if o.primed(h) {
		pinned = 2
	}

	completionStarted := time.Now()
	text, err := o.model.Complete(ctx, h, msg.Text)
	if o.metrics != nil {
		o.metrics.ObserveCompletionLatency(time.Since(completionStarted))
	}
	if err != nil {
		o.countProviderError(err)
		return o.fail(chatID, err)
	}

	updated := h.Append(conversation.UserTurn(msg.Text), conversation.AssistantTurn(text)).
		Window(o.opts.MaxTurns, pinned)
	if err := o.store.Replace(ctx, chatID, updated); err != nil {
		o.countStoreError("replace", err)
		return o.fail(chatID, err)
	}
	if o.metrics != nil {
		o.metrics.HistoryTurns.Observe(float64(len(updated)))
	}

	return Result{ChatID: chatID, Outcome: OutcomeReplied, Reply: text}
}

// primed reports whether h starts with the configured persona pair.
func (o *Orchestrator) primed(h conversation.History) bool {
	p := o.opts.Persona
	if !p.Enabled || len(h) < 2 {
		return false
	}
	return h[0].Role == conversation.RoleUser && h[0].Text() == p.Instruction &&
		h[1].Role == conversation.RoleAssistant && h[1].Text() == p.Acknowledgement
}

func (o *Orchestrator) unavailable(ctx context.Context) error {
	if s, ok := o.store.(history.Unavailable); ok {
		return s.Ping(ctx)
	}
	if m, ok := o.model.(llm.Unavailable); ok {
		_, err := m.Complete(ctx, nil, "")
		return err
	}
	return nil
}

func (o *Orchestrator) acquire(ctx context.Context, chatID string) (func(), error) {
	if o.locker == nil {
		return func() {}, nil
	}
	return o.locker.Acquire(ctx, chatID)
}

func (o *Orchestrator) fail(chatID string, err error) Result {
	outcome, reply := o.classify(err)
	return Result{ChatID: chatID, Outcome: outcome, Reply: reply, Err: err}
}

// classify maps each failure kind to its outcome and user-facing text.
func (o *Orchestrator) classify(err error) (Outcome, string) {
	r := o.opts.Replies
	switch {
	case errors.Is(err, history.ErrStoreUnavailable), errors.Is(err, llm.ErrModelUnavailable):
		return OutcomeConfigError, r.Config
	case errors.Is(err, history.ErrLockBusy):
		return OutcomeBusy, r.Busy
	case errors.Is(err, conversation.ErrSerialization):
		return OutcomeSerializationFailed, r.Apology
	case errors.Is(err, history.ErrStoreIO):
		return OutcomeStoreFailed, r.Degraded
	case errors.Is(err, llm.ErrModelRequestFailed):
		return OutcomeModelFailed, r.Apology
	default:
		return OutcomeFailed, r.Apology
	}
}

// signalTyping shows the typing indicator without waiting for it; failures are ignored.
func (o *Orchestrator) signalTyping(ctx context.Context, chatID int64) {
	if o.sender == nil {
		return
	}
	typingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.TypingTimeout)
	go func() {
		defer cancel()
		if err := o.sender.SendChatAction(typingCtx, chatID, telegram.ActionTyping); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("typing indicator failed")
		}
	}()
}

func (o *Orchestrator) reply(ctx context.Context, chatID int64, text string) {
	logger := loggerFrom(ctx)
	if o.sender == nil {
		logger.Warn().Msg("no messaging sender configured; reply dropped")
		return
	}
	// The reply still goes out when the webhook request itself has timed out.
	replyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.ReplyTimeout)
	defer cancel()
	if err := o.sender.SendMessage(replyCtx, chatID, text); err != nil {
		if o.metrics != nil {
			o.metrics.ReplyErrors.Inc()
		}
		logger.Error().Err(err).Msg("send reply")
	}
}

func (o *Orchestrator) record(ctx context.Context, res Result, userText string, started time.Time) {
	elapsed := time.Since(started)
	if o.metrics != nil {
		o.metrics.Updates.WithLabelValues(string(res.Outcome)).Inc()
	}

	logger := loggerFrom(ctx)
	evt := logger.Info()
	if res.Err != nil {
		evt = logger.Warn().Err(res.Err)
		var reqErr *llm.RequestError
		if errors.As(res.Err, &reqErr) {
			evt = evt.Str("provider", reqErr.Provider).
				Int("status", reqErr.StatusCode).
				Bool("retryable", reqErr.Retryable)
		}
	}
	evt.Str("outcome", string(res.Outcome)).
		Dur("elapsed", elapsed).
		Str("text", policy.Preview(userText, previewRunes)).
		Msg("update handled")

	if o.events == nil {
		return
	}
	e := events.Event{
		UpdateID:     res.UpdateID,
		ChatID:       res.ChatID,
		Outcome:      string(res.Outcome),
		UserPreview:  policy.Preview(userText, previewRunes),
		ReplyPreview: policy.Preview(res.Reply, previewRunes),
		DurationMS:   elapsed.Milliseconds(),
	}
	if res.Err != nil {
		e.Error = policy.Preview(res.Err.Error(), 200)
	}
	o.events.Publish(e)
}

func (o *Orchestrator) countStoreError(op string, err error) {
	if o.metrics == nil || errors.Is(err, history.ErrStoreUnavailable) {
		return
	}
	o.metrics.StoreErrors.WithLabelValues(op).Inc()
}

func (o *Orchestrator) countProviderError(err error) {
	if o.metrics == nil {
		return
	}
	code := "unknown"
	var reqErr *llm.RequestError
	if errors.As(err, &reqErr) {
		code = reliability.StatusCode(reqErr.StatusCode)
	}
	o.metrics.ProviderErrors.WithLabelValues(o.provider, code).Inc()
}

func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
