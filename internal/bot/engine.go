package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/message"

	"bananabot/internal/account"
	"bananabot/internal/batch"
	"bananabot/internal/conversation"
	"bananabot/internal/domain"
	"bananabot/internal/ledger"
	"bananabot/internal/metrics"
	"bananabot/internal/orchestrator"
	"bananabot/internal/payment"
)

// Deps are the collaborators of an Engine.
type Deps struct {
	Accounts     *account.Service
	Payments     *payment.Service
	Orchestrator *orchestrator.Orchestrator
	States       conversation.Store
	Locker       conversation.Locker
	Notifier     Notifier
	Costs        conversation.Costs
	QuietPeriod  time.Duration
	Logger       zerolog.Logger
}

// Engine handles chat events. Each event runs on its own goroutine; state
// changes for one user are serialized by the Locker, and generations run
// after the lock is released.
type Engine struct {
	accounts *account.Service
	payments *payment.Service
	orch     *orchestrator.Orchestrator
	states   conversation.Store
	locker   conversation.Locker
	notifier Notifier
	costs    conversation.Costs
	batches  *batch.Collector[Event]
	logger   zerolog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewEngine(deps Deps) *Engine {
	e := &Engine{
		accounts: deps.Accounts,
		payments: deps.Payments,
		orch:     deps.Orchestrator,
		states:   deps.States,
		locker:   deps.Locker,
		notifier: deps.Notifier,
		costs:    deps.Costs,
		logger:   deps.Logger.With().Str("component", "bot").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	if e.locker == nil {
		e.locker = conversation.NewLocalLocker()
	}
	if e.states == nil {
		e.states = conversation.NewMemoryStore()
	}
	if e.notifier == nil {
		e.notifier = NewLogNotifier(deps.Logger)
	}
	e.batches = batch.New(e.onBatch, deps.Logger, batch.WithQuietPeriod(deps.QuietPeriod))
	return e
}

// Dispatch handles ev on a new goroutine detached from ctx cancellation, so
// a webhook may acknowledge before the generation finishes.
func (e *Engine) Dispatch(ctx context.Context, ev Event) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.Handle(context.WithoutCancel(ctx), ev); err != nil {
			e.logger.Error().Err(err).Int64("user_id", ev.UserID).Str("kind", ev.Kind()).Msg("bot: event failed")
		}
	}()
}

// Wait blocks until every dispatched event has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Handle processes one event synchronously.
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	if ev.UserID == 0 {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	metrics.EventsTotal.WithLabelValues(ev.Kind()).Inc()
	p := printer(ev.Language)

	user, created, err := e.accounts.Ensure(ctx, account.Contact{
		ID:         ev.UserID,
		Username:   ev.Username,
		FullName:   ev.FullName,
		Language:   ev.Language,
		ReferrerID: ev.ReferrerID,
	})
	if err != nil {
		e.notify(ctx, ev.UserID, Notice{Kind: NoticeError, Text: p.Sprintf(msgInternal)})
		return fmt.Errorf("ensure user: %w", err)
	}

	if ev.Action == ActionStart {
		return e.start(ctx, ev, p, user, created)
	}

	if len(ev.ImageRefs) > 0 && ev.Action == ActionNone {
		if ev.CorrelationID == "" {
			return e.onImages(ctx, ev, ev.ImageRefs, ev.Text)
		}
		err := e.batches.Submit(ctx, ev.batchKey(), ev.Seq, ev)
		var capErr *batch.CapacityError
		if errors.As(err, &capErr) {
			e.notify(ctx, ev.UserID, Notice{Kind: NoticeError, Text: p.Sprintf(msgTooManyImages, capErr.Max, capErr.Count)})
			return nil
		}
		return err
	}

	switch ev.Action {
	case ActionNone:
		return e.onText(ctx, ev, p)
	case ActionGenerate:
		return e.commit(ctx, ev, p)
	case ActionReroll:
		return e.reroll(ctx, ev, p)
	case ActionEdit:
		return e.edit(ctx, ev, p)
	case ActionProfile:
		return e.profile(ctx, ev, p)
	case ActionClaimBonus:
		return e.claimBonus(ctx, ev, p)
	case ActionBuy:
		return e.buy(ctx, ev, p)
	case ActionCancel:
		return e.transition(ctx, ev, p, func(s *conversation.State) error { s.Cancel(); return nil })
	case ActionWizard:
		return e.transition(ctx, ev, p, func(s *conversation.State) error { s.StartWizard(); return nil })
	case ActionCycleQuality:
		return e.transition(ctx, ev, p, func(s *conversation.State) error { _, err := s.CycleQuality(); return err })
	case ActionOpenRatio:
		return e.transition(ctx, ev, p, func(s *conversation.State) error { return s.OpenRatio() })
	case ActionSetRatio:
		return e.transition(ctx, ev, p, func(s *conversation.State) error { return s.SetRatio(strings.TrimSpace(ev.Text)) })
	case ActionBack:
		return e.transition(ctx, ev, p, func(s *conversation.State) error { return s.Back() })
	case ActionToggleTier:
		var tier domain.Tier
		err := e.transition(ctx, ev, p, func(s *conversation.State) error {
			var err error
			tier, err = s.ToggleTier()
			return err
		})
		if err == nil && tier != "" {
			if err := e.accounts.SetPreferredTier(ctx, ev.UserID, tier); err != nil {
				e.logger.Warn().Err(err).Int64("user_id", ev.UserID).Msg("bot: save tier preference failed")
			}
		}
		return err
	default:
		e.notify(ctx, ev.UserID, Notice{Kind: NoticeError, Text: p.Sprintf(msgNotAvailable)})
		return fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, ev.Action)
	}
}

func (e *Engine) start(ctx context.Context, ev Event, p *message.Printer, user *domain.User, created bool) error {
	if _, err := e.update(ctx, ev.UserID, func(s *conversation.State) error { s.Cancel(); return nil }); err != nil {
		return err
	}
	balance, err := e.accounts.Balance(ctx, user.ID)
	if err != nil {
		return err
	}
	text := p.Sprintf(msgWelcomeBack, credits(p, balance))
	if created {
		text = p.Sprintf(msgWelcome, credits(p, balance))
	}
	e.notify(ctx, ev.UserID, Notice{Kind: NoticeWelcome, Text: text})
	return nil
}

// onBatch receives a flushed album in send order.
func (e *Engine) onBatch(ctx context.Context, key string, items []Event) error {
	if len(items) == 0 {
		return nil
	}
	first := items[0]
	var refs []string
	caption := ""
	for _, it := range items {
		refs = append(refs, it.ImageRefs...)
		if caption == "" {
			caption = strings.TrimSpace(it.Text)
		}
	}
	return e.onImages(ctx, first, refs, caption)
}

func (e *Engine) onImages(ctx context.Context, ev Event, refs []string, caption string) error {
	preferred := e.accounts.PreferredTier(ctx, ev.UserID)
	return e.transition(ctx, ev, printer(ev.Language), func(s *conversation.State) error {
		return s.SubmitImages(refs, caption, preferred)
	})
}

func (e *Engine) onText(ctx context.Context, ev Event, p *message.Printer) error {
	if strings.TrimSpace(ev.Text) == "" {
		return nil
	}
	preferred := e.accounts.PreferredTier(ctx, ev.UserID)
	return e.transition(ctx, ev, p, func(s *conversation.State) error {
		return s.SubmitText(ev.Text, preferred)
	})
}

// transition applies fn under the user's lock and reports the new state.
// Rejected input is reported to the user and is not an error.
func (e *Engine) transition(ctx context.Context, ev Event, p *message.Printer, fn func(*conversation.State) error) error {
	st, err := e.update(ctx, ev.UserID, fn)
	switch {
	case errors.Is(err, conversation.ErrUnexpectedInput):
		e.notify(ctx, ev.UserID, Notice{Kind: NoticeError, Step: string(st.Current()), Text: p.Sprintf(msgWrongInput, e.describe(p, st).Text)})
		return nil
	case errors.Is(err, conversation.ErrTooManyInputs):
		var tooMany *conversation.TooManyInputsError
		count := domain.MaxInputRefs + 1
		if errors.As(err, &tooMany) {
			count = tooMany.Count
		}
		e.notify(ctx, ev.UserID, Notice{Kind: NoticeError, Text: p.Sprintf(msgTooManyImages, domain.MaxInputRefs, count)})
		return nil
	case errors.Is(err, conversation.ErrInvalidTransition), errors.Is(err, conversation.ErrUnknownRatio), errors.Is(err, conversation.ErrEmptyPrompt):
		e.notify(ctx, ev.UserID, Notice{Kind: NoticeError, Text: p.Sprintf(msgNotAvailable)})
		return nil
	case err != nil:
		e.notify(ctx, ev.UserID, Notice{Kind: NoticeError, Text: p.Sprintf(msgInternal)})
		return err
	}
	e.notify(ctx, ev.UserID, e.describe(p, st))
	return nil
}

// update loads, mutates and saves the user's state under the lock. The
// returned state is a snapshot safe to read after the lock is released. On
// error nothing is saved.
func (e *Engine) update(ctx context.Context, userID int64, fn func(*conversation.State) error) (conversation.State, error) {
	unlock, err := e.locker.Lock(ctx, userID)
	if err != nil {
		return conversation.State{}, fmt.Errorf("lock conversation: %w", err)
	}
	defer unlock()

	st, err := e.states.Load(ctx, userID)
	if err != nil {
		return conversation.State{}, fmt.Errorf("load conversation: %w", err)
	}
	if err := fn(st); err != nil {
		return *st, err
	}
	st.UpdatedAt = e.now()
	if err := e.states.Save(ctx, st); err != nil {
		return *st, fmt.Errorf("save conversation: %w", err)
	}
	snapshot := *st
	snapshot.InputRefs = append([]string(nil), st.InputRefs...)
	return snapshot, nil
}

func (e *Engine) describe(p *message.Printer, st conversation.State) Notice {
	n := Notice{Kind: NoticeState, Step: string(st.Current())}
	switch st.Current() {
	case conversation.StepAwaitingCaption:
		n.Text = p.Sprintf(msgAwaitingCaption, len(st.InputRefs))
	case conversation.StepConfiguring:
		tier := domain.ParseTier(string(st.Tier))
		quality := "-"
		if tier == domain.TierPro {
			quality = strings.ToUpper(string(st.Quality))
		}
		n.Text = p.Sprintf(msgConfigure, st.Prompt, len(st.InputRefs), tierName(p, tier), st.Ratio, quality, credits(p, e.costs.For(tier)))
	case conversation.StepSelectingRatio:
		n.Text = p.Sprintf(msgSelectRatio, strings.Join(domain.Ratios, " "))
		n.Options = append([]string(nil), domain.Ratios...)
	case conversation.StepWizardBase:
		n.Text = p.Sprintf(msgWizardBase)
	case conversation.StepWizardReference:
		n.Text = p.Sprintf(msgWizardReference)
	case conversation.StepWizardDescription:
		n.Text = p.Sprintf(msgWizardDesc)
	case conversation.StepAwaitingEditInstruction:
		n.Text = p.Sprintf(msgEditInstruction)
	default:
		n.Text = p.Sprintf(msgCancelled)
	}
	return n
}

func (e *Engine) commit(ctx context.Context, ev Event, p *message.Printer) error {
	var params domain.GenerationParams
	_, err := e.update(ctx, ev.UserID, func(s *conversation.State) error {
		var err error
		params, err = s.Commit(e.costs)
		return err
	})
	if err != nil {
		if errors.Is(err, conversation.ErrInvalidTransition) || errors.Is(err, domain.ErrInvalidInput) {
			e.notify(ctx, ev.UserID, Notice{Kind: NoticeError, Text: p.Sprintf(msgNotAvailable)})
			return nil
		}
		return err
	}
	return e.generate(ctx, ev, p, func(onDispatch func(orchestrator.Dispatch)) (orchestrator.Outcome, error) {
		return e.orch.Run(ctx, orchestrator.Request{UserID: ev.UserID, GenerationParams: params, OnDispatch: onDispatch})
	})
}

func (e *Engine) reroll(ctx context.Context, ev Event, p *message.Printer) error {
	return e.generate(ctx, ev, p, func(onDispatch func(orchestrator.Dispatch)) (orchestrator.Outcome, error) {
		return e.orch.Reroll(ctx, ev.UserID, ev.RecordID, onDispatch)
	})
}

func (e *Engine) edit(ctx context.Context, ev Event, p *message.Printer) error {
	rec, err := e.orch.Record(ctx, ev.UserID, ev.RecordID)
	if errors.Is(err, domain.ErrNotFound) {
		e.notify(ctx, ev.UserID, Notice{Kind: NoticeError, Text: p.Sprintf(msgRecordNotFound)})
		return nil
	}
	if err != nil {
		return err
	}
	return e.transition(ctx, ev, p, func(s *conversation.State) error {
		return s.BeginEdit(rec.ArtifactRef())
	})
}

func (e *Engine) generate(ctx context.Context, ev Event, p *message.Printer, run func(func(orchestrator.Dispatch)) (orchestrator.Outcome, error)) error {
	onDispatch := func(d orchestrator.Dispatch) {
		if d.Advisory {
			e.notify(ctx, ev.UserID, Notice{Kind: NoticeAdvisory, Text: p.Sprintf(msgAdvisory)})
		}
		e.notify(ctx, ev.UserID, Notice{Kind: NoticeDispatch, Text: p.Sprintf(msgDispatch, credits(p, d.Cost))})
	}

	outcome, err := run(onDispatch)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.notify(ctx, ev.UserID, Notice{Kind: NoticeError, Text: p.Sprintf(msgRecordNotFound)})
			return nil
		}
		e.notify(ctx, ev.UserID, Notice{Kind: NoticeError, Text: p.Sprintf(msgInternal)})
		return err
	}

	switch o := outcome.(type) {
	case orchestrator.Success:
		balance, _ := e.accounts.Balance(ctx, ev.UserID)
		caption := p.Sprintf(msgSuccess, credits(p, balance))
		if err := e.notifier.SendArtifact(ctx, ev.UserID, o.Record, o.Artifact, caption); err != nil {
			e.logger.Warn().Err(err).Int64("user_id", ev.UserID).Str("record_id", o.Record.ID).Msg("bot: deliver artifact failed")
		}
	case orchestrator.InsufficientBalance:
		e.notify(ctx, ev.UserID, Notice{Kind: NoticeInsufficient, Text: p.Sprintf(msgInsufficient, credits(p, o.Required), credits(p, o.Balance))})
	case orchestrator.ProviderRejected:
		text := p.Sprintf(msgRejected, credits(p, o.Refunded))
		if o.Refunded == 0 {
			text = p.Sprintf(msgRejectedPending)
		}
		e.notify(ctx, ev.UserID, Notice{Kind: NoticeRejected, Text: text})
	case orchestrator.TransientFailure:
		text := p.Sprintf(msgTransient, o.Diagnostic, credits(p, o.Refunded))
		if o.Refunded == 0 {
			text = p.Sprintf(msgTransientPending, o.Diagnostic)
		}
		e.notify(ctx, ev.UserID, Notice{Kind: NoticeTransient, Text: text})
	}
	return nil
}

func (e *Engine) profile(ctx context.Context, ev Event, p *message.Printer) error {
	prof, err := e.accounts.Profile(ctx, ev.UserID)
	if err != nil {
		return err
	}
	e.notify(ctx, ev.UserID, Notice{
		Kind: NoticeProfile,
		Text: p.Sprintf(msgBalance, credits(p, prof.Balance), prof.Generations, prof.TotalSpent.StringFixed(0)),
	})
	return nil
}

func (e *Engine) claimBonus(ctx context.Context, ev Event, p *message.Printer) error {
	kind, err := ledger.ParseBonusKind(strings.TrimSpace(ev.Text))
	if err != nil {
		kind = ledger.BonusSubscription
	}
	balance, err := e.accounts.ClaimBonus(ctx, ev.UserID, kind)
	switch {
	case errors.Is(err, ledger.ErrBonusClaimed):
		e.notify(ctx, ev.UserID, Notice{Kind: NoticeBonus, Text: p.Sprintf(msgBonusClaimed)})
		return nil
	case errors.Is(err, domain.ErrInvalidInput):
		e.notify(ctx, ev.UserID, Notice{Kind: NoticeError, Text: p.Sprintf(msgNotAvailable)})
		return nil
	case err != nil:
		return err
	}
	e.notify(ctx, ev.UserID, Notice{Kind: NoticeBonus, Text: p.Sprintf(msgBonusGranted, credits(p, balance))})
	return nil
}

func (e *Engine) buy(ctx context.Context, ev Event, p *message.Printer) error {
	purchase, err := e.payments.Create(ctx, ev.UserID, ev.Text)
	if errors.Is(err, payment.ErrUnknownPackage) {
		e.notify(ctx, ev.UserID, Notice{Kind: NoticeError, Text: p.Sprintf(msgPurchaseUnknown)})
		return nil
	}
	if err != nil {
		return err
	}
	e.notify(ctx, ev.UserID, Notice{
		Kind: NoticePurchase,
		Text: p.Sprintf(msgPurchaseCreated, purchase.ID, credits(p, purchase.Amount), purchase.Price.StringFixed(0)),
	})
	return nil
}

// NotifyStaleRefund tells a user that the watchdog returned their credits.
func (e *Engine) NotifyStaleRefund(ctx context.Context, task domain.Task, balance int64) error {
	p := e.userPrinter(ctx, task.UserID)
	return e.notifier.Notify(ctx, task.UserID, Notice{
		Kind: NoticeStaleRefund,
		Text: p.Sprintf(msgStaleRefund, credits(p, task.Cost), credits(p, balance)),
	})
}

// NotifyBalanceAdjusted tells a user that an operator changed their balance.
func (e *Engine) NotifyBalanceAdjusted(ctx context.Context, userID, delta, balance int64) error {
	p := e.userPrinter(ctx, userID)
	key := msgBalanceCredited
	if delta < 0 {
		key, delta = msgBalanceDebited, -delta
	}
	return e.notifier.Notify(ctx, userID, Notice{
		Kind: NoticeBalance,
		Text: p.Sprintf(key, credits(p, delta), credits(p, balance)),
	})
}

// SendSupportMessage relays an operator's message to a user.
func (e *Engine) SendSupportMessage(ctx context.Context, userID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: message is empty", domain.ErrInvalidInput)
	}
	if _, err := e.accounts.Get(ctx, userID); err != nil {
		return err
	}
	p := e.userPrinter(ctx, userID)
	return e.notifier.Notify(ctx, userID, Notice{
		Kind: NoticeSupport,
		Text: p.Sprintf(msgSupport, text),
	})
}

func (e *Engine) userPrinter(ctx context.Context, userID int64) *message.Printer {
	lang := ""
	if user, err := e.accounts.Get(ctx, userID); err == nil {
		lang = user.Language
	}
	return printer(lang)
}

func (e *Engine) notify(ctx context.Context, userID int64, n Notice) {
	if err := e.notifier.Notify(ctx, userID, n); err != nil {
		e.logger.Warn().Err(err).Int64("user_id", userID).Str("kind", string(n.Kind)).Msg("bot: notify failed")
	}
}

func tierName(p *message.Printer, tier domain.Tier) string {
	if tier == domain.TierPro {
		return p.Sprintf(msgTierPro)
	}
	return p.Sprintf(msgTierStandard)
}
