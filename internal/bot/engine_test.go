package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bananabot/internal/account"
	"bananabot/internal/adapter/memory"
	"bananabot/internal/conversation"
	"bananabot/internal/domain"
	"bananabot/internal/infra"
	"bananabot/internal/ledger"
	"bananabot/internal/orchestrator"
	"bananabot/internal/payment"
	"bananabot/internal/providers/image"
	"bananabot/internal/storage"
)

type recordingNotifier struct {
	mu        sync.Mutex
	notices   []Notice
	artifacts []domain.GenerationRecord
}

func (r *recordingNotifier) Notify(ctx context.Context, userID int64, n Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return nil
}

func (r *recordingNotifier) SendArtifact(ctx context.Context, userID int64, rec domain.GenerationRecord, art image.Artifact, caption string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = append(r.artifacts, rec)
	return nil
}

func (r *recordingNotifier) kinds() []NoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NoticeKind, len(r.notices))
	for i, n := range r.notices {
		out[i] = n.Kind
	}
	return out
}

func (r *recordingNotifier) last() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notices[len(r.notices)-1]
}

type scriptedGenerator struct {
	mu    sync.Mutex
	calls []image.Request
	err   error
	// inline returns bytes without a provider URL, as Gemini does.
	inline bool
}

func (g *scriptedGenerator) Generate(ctx context.Context, req image.Request) (image.Artifact, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return image.Artifact{}, g.err
	}
	if g.inline {
		return image.Artifact{Data: []byte("\x89PNG\r\n\x1a\n" + req.RequestID), MIME: "image/png", Provider: "gemini"}, nil
	}
	return image.Artifact{Data: []byte("png"), MIME: "image/png", SourceURL: "https://cdn/" + req.RequestID + ".png"}, nil
}

func (g *scriptedGenerator) Name() string { return "scripted" }

type harness struct {
	engine   *Engine
	notifier *recordingNotifier
	states   *conversation.MemoryStore
	ledger   *ledger.Memory
	gen      *scriptedGenerator
}

// newHarness builds an engine over in-memory stores. wrap, when given,
// decorates the ledger seen by the orchestrator.
func newHarness(t *testing.T, wrap ...func(ledger.Store) ledger.Store) harness {
	t.Helper()
	store := memory.New()
	l := ledger.NewMemory()
	gen := &scriptedGenerator{}
	notifier := &recordingNotifier{}
	states := conversation.NewMemoryStore()
	logger := infra.NopLogger()
	files, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	var orchLedger ledger.Store = l
	for _, w := range wrap {
		orchLedger = w(orchLedger)
	}

	accounts := account.NewService(store.Users(), store.Records(), store.Purchases(), l, account.Settings{StartBalance: 3, BonusAmount: 5}, logger)
	orch := orchestrator.New(orchestrator.Deps{
		Ledger:    orchLedger,
		Tasks:     store.Tasks(),
		Records:   store.Records(),
		Generator: gen,
		Artifacts: files,
		Logger:    logger,
	})
	engine := NewEngine(Deps{
		Accounts:     accounts,
		Payments:     payment.NewService(nil, store.Purchases(), l, logger),
		Orchestrator: orch,
		States:       states,
		Locker:       conversation.NewLocalLocker(),
		Notifier:     notifier,
		Costs:        conversation.Costs{Standard: 1, Pro: 4},
		QuietPeriod:  500 * time.Millisecond,
		Logger:       logger,
	})
	return harness{engine: engine, notifier: notifier, states: states, ledger: l, gen: gen}
}

func (h harness) state(t *testing.T, user int64) *conversation.State {
	t.Helper()
	st, err := h.states.Load(context.Background(), user)
	require.NoError(t, err)
	return st
}

func (h harness) balance(user int64) int64 {
	b, _ := h.ledger.Balance(context.Background(), user)
	return b
}

func TestAlbumWithoutCaptionFlushesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 4; i >= 1; i-- {
		h.engine.Dispatch(ctx, Event{
			UserID:        1,
			CorrelationID: "album-1",
			Seq:           int64(i),
			ImageRefs:     []string{fmt.Sprintf("img-%d", i)},
		})
	}
	h.engine.Wait()

	st := h.state(t, 1)
	assert.Equal(t, conversation.StepAwaitingCaption, st.Current())
	assert.Equal(t, []string{"img-1", "img-2", "img-3", "img-4"}, st.InputRefs)
	assert.Equal(t, []NoticeKind{NoticeState}, h.notifier.kinds())
	assert.Zero(t, h.engine.batches.Pending())
}

func TestAlbumOverCapacityIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		h.engine.Dispatch(ctx, Event{UserID: 2, CorrelationID: "big", Seq: int64(i), ImageRefs: []string{"x"}})
	}
	h.engine.Wait()

	assert.Equal(t, conversation.StepIdle, h.state(t, 2).Current())
	assert.Equal(t, NoticeError, h.notifier.last().Kind)
}

func TestAlbumCapacityCountsImagesNotMessages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.Dispatch(ctx, Event{UserID: 20, Language: "en", CorrelationID: "multi", Seq: 1, ImageRefs: []string{"a", "b", "c"}})
	h.engine.Dispatch(ctx, Event{UserID: 20, Language: "en", CorrelationID: "multi", Seq: 2, ImageRefs: []string{"d", "e"}})
	h.engine.Wait()

	assert.Equal(t, conversation.StepIdle, h.state(t, 20).Current())
	assert.Equal(t, NoticeError, h.notifier.last().Kind)
	assert.Equal(t, "At most 4 photos per request, got 5.", h.notifier.last().Text)
}

func TestSingleMessageOverCapacityReportsImageCount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 21, Language: "en", ImageRefs: []string{"a", "b", "c", "d", "e", "f"}}))

	assert.Equal(t, "At most 4 photos per request, got 6.", h.notifier.last().Text)
}

func TestTextConfigureAndGenerate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 3, Text: "a banana on the moon", Language: "en"}))
	assert.Equal(t, conversation.StepConfiguring, h.state(t, 3).Current())

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 3, Action: ActionGenerate}))
	assert.Equal(t, int64(2), h.balance(3))
	require.Len(t, h.notifier.artifacts, 1)

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 3, Action: ActionGenerate}))
	assert.Equal(t, int64(1), h.balance(3))
	assert.Equal(t, conversation.StepConfiguring, h.state(t, 3).Current())

	rec := h.notifier.artifacts[0]
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 3, Action: ActionReroll, RecordID: rec.ID}))
	assert.Equal(t, int64(0), h.balance(3))

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 3, Action: ActionReroll, RecordID: rec.ID}))
	assert.Equal(t, NoticeInsufficient, h.notifier.last().Kind)
	assert.Equal(t, int64(0), h.balance(3))
}

func TestTierToggleChangesCostAndPersistsPreference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 4, Text: "portrait"}))
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 4, Action: ActionToggleTier}))
	assert.Equal(t, domain.TierPro, h.state(t, 4).Tier)
	assert.Equal(t, domain.TierPro, h.engine.accounts.PreferredTier(ctx, 4))

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 4, Action: ActionGenerate}))
	assert.Equal(t, NoticeInsufficient, h.notifier.last().Kind)
	assert.Equal(t, int64(3), h.balance(4))

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 4, Text: "landscape"}))
	assert.Equal(t, domain.TierPro, h.state(t, 4).Tier)
}

func TestTransientFailureRefundsAndNotifies(t *testing.T) {
	h := newHarness(t)
	h.gen.err = errors.New("upstream reset")
	ctx := context.Background()

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 5, Text: "x"}))
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 5, Action: ActionGenerate}))
	assert.Equal(t, int64(3), h.balance(5))
	kinds := h.notifier.kinds()
	assert.Equal(t, NoticeDispatch, kinds[len(kinds)-2])
	assert.Equal(t, NoticeTransient, kinds[len(kinds)-1])
}

type brokenRefunds struct {
	ledger.Store
}

func (brokenRefunds) Refund(ctx context.Context, user int64, amount int64) (int64, error) {
	return 0, errors.New("redis: i/o timeout")
}

func TestFailedRefundIsReportedAsPending(t *testing.T) {
	h := newHarness(t, func(l ledger.Store) ledger.Store { return brokenRefunds{l} })
	h.gen.err = errors.New("upstream reset")
	ctx := context.Background()

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 22, Language: "en", Text: "x"}))
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 22, Action: ActionGenerate}))
	assert.Equal(t, int64(2), h.balance(22))
	last := h.notifier.last()
	assert.Equal(t, NoticeTransient, last.Kind)
	assert.Contains(t, last.Text, "returned automatically")
	assert.NotContains(t, last.Text, "Refunded")
}

func TestAdvisoryForStandardMultiImage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 6, Text: "merge them", ImageRefs: []string{"a", "b"}}))
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 6, Action: ActionGenerate}))
	assert.Contains(t, h.notifier.kinds(), NoticeAdvisory)
	require.Len(t, h.gen.calls, 1)
	assert.Equal(t, []string{"a", "b"}, h.gen.calls[0].Refs())
}

func TestWizardRejectsWrongInputKind(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 7, Action: ActionWizard}))
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 7, Text: "hat"}))
	assert.Equal(t, conversation.StepWizardBase, h.state(t, 7).Current())
	assert.Equal(t, NoticeError, h.notifier.last().Kind)

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 7, ImageRefs: []string{"base"}}))
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 7, ImageRefs: []string{"ref"}}))
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 7, Text: "hat"}))

	st := h.state(t, 7)
	assert.Equal(t, conversation.StepConfiguring, st.Current())
	assert.Equal(t, []string{"base", "ref"}, st.InputRefs)
	assert.Equal(t, conversation.ReplacePrompt("hat"), st.Prompt)
}

func TestEditUsesRecordArtifact(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 8, Text: "cat"}))
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 8, Action: ActionGenerate}))
	rec := h.notifier.artifacts[0]

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 8, Action: ActionEdit, RecordID: rec.ID}))
	st := h.state(t, 8)
	assert.Equal(t, conversation.StepAwaitingEditInstruction, st.Current())
	assert.Equal(t, []string{rec.ArtifactRef()}, st.InputRefs)

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 8, Text: "make it blue"}))
	st = h.state(t, 8)
	assert.Equal(t, conversation.StepConfiguring, st.Current())
	assert.Equal(t, "make it blue", st.Prompt)

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 9, Action: ActionEdit, RecordID: rec.ID}))
	assert.Equal(t, NoticeError, h.notifier.last().Kind)
}

func TestEditOfInlineArtifactSendsStoredBytes(t *testing.T) {
	h := newHarness(t)
	h.gen.inline = true
	ctx := context.Background()
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 23, Text: "cat"}))
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 23, Action: ActionGenerate}))
	require.Len(t, h.notifier.artifacts, 1)
	rec := h.notifier.artifacts[0]
	require.Empty(t, rec.SourceURL)
	require.True(t, storage.IsArtifactKey(rec.ArtifactRef()))

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 23, Action: ActionEdit, RecordID: rec.ID}))
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 23, Text: "make it blue"}))
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 23, Action: ActionGenerate}))

	require.Len(t, h.gen.calls, 2)
	edit := h.gen.calls[1]
	require.Len(t, edit.Inputs, 1)
	assert.Equal(t, rec.ArtifactRef(), edit.Inputs[0].Ref)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"+h.gen.calls[0].RequestID), edit.Inputs[0].Data)
	assert.Len(t, h.notifier.artifacts, 2)
	assert.Equal(t, int64(1), h.balance(23))
}

func TestStartBonusAndPurchase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 10, Action: ActionStart, Language: "ru"}))
	assert.Equal(t, NoticeWelcome, h.notifier.last().Kind)
	assert.Contains(t, h.notifier.last().Text, "3 банана")

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 10, Action: ActionClaimBonus, Text: "channel"}))
	assert.Equal(t, int64(8), h.balance(10))
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 10, Action: ActionClaimBonus, Text: "channel"}))
	assert.Equal(t, int64(8), h.balance(10))

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 10, Action: ActionBuy, Text: "mini"}))
	assert.Equal(t, NoticePurchase, h.notifier.last().Kind)
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 10, Action: ActionBuy, Text: "nope"}))
	assert.Equal(t, NoticeError, h.notifier.last().Kind)
}

func TestCancelClearsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 11, Text: "x"}))
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 11, Action: ActionOpenRatio}))
	assert.Equal(t, domain.Ratios, h.notifier.last().Options)
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 11, Action: ActionSetRatio, Text: "16:9"}))
	assert.Equal(t, "16:9", h.state(t, 11).Ratio)

	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 11, Action: ActionCancel}))
	assert.Equal(t, conversation.StepIdle, h.state(t, 11).Current())
	assert.Empty(t, h.state(t, 11).Prompt)
}

func TestNotifyStaleRefundUsesUserLanguage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 12, Action: ActionStart, Language: "en-US"}))

	require.NoError(t, h.engine.NotifyStaleRefund(ctx, domain.Task{UserID: 12, Cost: 1}, 4))
	assert.Equal(t, NoticeStaleRefund, h.notifier.last().Kind)
	assert.Contains(t, h.notifier.last().Text, "1 banana")
}

func TestOperatorNotices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.engine.Handle(ctx, Event{UserID: 24, Action: ActionStart, Language: "en"}))

	require.NoError(t, h.engine.NotifyBalanceAdjusted(ctx, 24, 5, 8))
	assert.Equal(t, NoticeBalance, h.notifier.last().Kind)
	assert.Equal(t, "An administrator credited 5 bananas. Balance: 8 bananas.", h.notifier.last().Text)

	require.NoError(t, h.engine.NotifyBalanceAdjusted(ctx, 24, -1, 7))
	assert.Equal(t, "An administrator debited 1 banana. Balance: 7 bananas.", h.notifier.last().Text)

	require.NoError(t, h.engine.SendSupportMessage(ctx, 24, " your payment arrived "))
	assert.Equal(t, NoticeSupport, h.notifier.last().Kind)
	assert.Equal(t, "Message from support:\nyour payment arrived", h.notifier.last().Text)

	require.ErrorIs(t, h.engine.SendSupportMessage(ctx, 24, "  "), domain.ErrInvalidInput)
	require.ErrorIs(t, h.engine.SendSupportMessage(ctx, 999, "hello"), domain.ErrNotFound)
}
