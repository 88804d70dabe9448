// Package conversation implements the per-user configuration wizard that
// turns chat input into a committed generation request.
package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bananabot/internal/domain"
)

// Step is the current position of a conversation.
type Step string

const (
	StepIdle                    Step = "idle"
	StepAwaitingCaption         Step = "awaiting_caption"
	StepConfiguring             Step = "configuring"
	StepSelectingRatio          Step = "selecting_ratio"
	StepWizardBase              Step = "wizard_base"
	StepWizardReference         Step = "wizard_reference"
	StepWizardDescription       Step = "wizard_description"
	StepAwaitingEditInstruction Step = "awaiting_edit_instruction"
)

// Quality selects the pro-tier resolution.
type Quality string

const (
	QualityHD Quality = "hd"
	Quality2K Quality = "2k"
	Quality4K Quality = "4k"

	DefaultQuality = Quality2K
)

// Next cycles hd -> 2k -> 4k -> hd.
func (q Quality) Next() Quality {
	switch q {
	case QualityHD:
		return Quality2K
	case Quality2K:
		return Quality4K
	default:
		return QualityHD
	}
}

// Resolution maps the quality onto the provider resolution for tier.
func (q Quality) Resolution(tier domain.Tier) string {
	if tier != domain.TierPro {
		return domain.DefaultResolution
	}
	switch q {
	case Quality2K:
		return "2K"
	case Quality4K:
		return "4K"
	default:
		return "1K"
	}
}

var (
	// ErrInvalidTransition rejects actions that make no sense in the current step.
	ErrInvalidTransition = errors.New("action not available in this step")
	// ErrUnexpectedInput rejects input of the wrong kind for a wizard step.
	// The step does not advance.
	ErrUnexpectedInput = errors.New("unexpected input for this step")
	ErrUnknownRatio    = errors.New("unknown aspect ratio")
	ErrTooManyInputs   = fmt.Errorf("at most %d images per request", domain.MaxInputRefs)
	ErrEmptyPrompt     = errors.New("prompt is empty")
)

// TooManyInputsError carries the image count of a rejected submission.
type TooManyInputsError struct {
	Count int
}

func (e *TooManyInputsError) Error() string {
	return fmt.Sprintf("%s, got %d", ErrTooManyInputs, e.Count)
}

func (e *TooManyInputsError) Unwrap() error { return ErrTooManyInputs }

// Costs prices a commit by tier.
type Costs struct {
	Standard int64
	Pro      int64
}

// For returns the price of tier.
func (c Costs) For(tier domain.Tier) int64 {
	if tier == domain.TierPro {
		return c.Pro
	}
	return c.Standard
}

// State is one user's conversation. The zero value with a UserID is Idle.
type State struct {
	UserID    int64       `json:"user_id"`
	Step      Step        `json:"step"`
	Prompt    string      `json:"prompt,omitempty"`
	InputRefs []string    `json:"input_refs,omitempty"`
	Tier      domain.Tier `json:"tier,omitempty"`
	Ratio     string      `json:"ratio,omitempty"`
	Quality   Quality     `json:"quality,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewState returns an idle conversation for user.
func NewState(user int64) *State {
	return &State{UserID: user, Step: StepIdle}
}

// Current returns the step, treating an unset step as Idle.
func (s *State) Current() Step {
	if s.Step == "" {
		return StepIdle
	}
	return s.Step
}

func (s *State) reset(step Step) {
	s.Step = step
	s.Prompt = ""
	s.InputRefs = nil
	s.Tier = ""
	s.Ratio = ""
	s.Quality = ""
}

func (s *State) configure(prompt string, refs []string, preferred domain.Tier) {
	s.reset(StepConfiguring)
	s.Prompt = prompt
	s.InputRefs = refs
	s.Tier = domain.ParseTier(string(preferred))
	s.Ratio = domain.DefaultRatio
	s.Quality = DefaultQuality
}

// SubmitText feeds free text into the conversation. preferred is the user's
// saved tier, used when a new configuration starts.
func (s *State) SubmitText(text string, preferred domain.Tier) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyPrompt
	}
	switch s.Current() {
	case StepIdle, StepConfiguring, StepSelectingRatio:
		s.configure(text, nil, preferred)
	case StepAwaitingCaption, StepAwaitingEditInstruction:
		s.configure(text, s.InputRefs, preferred)
	case StepWizardDescription:
		s.configure(ReplacePrompt(text), s.InputRefs, preferred)
	case StepWizardBase, StepWizardReference:
		return ErrUnexpectedInput
	default:
		return ErrInvalidTransition
	}
	return nil
}

// SubmitImages feeds one flushed image batch, optionally captioned.
func (s *State) SubmitImages(refs []string, caption string, preferred domain.Tier) error {
	refs = domain.NormalizeRefs(refs)
	if len(refs) == 0 {
		return ErrUnexpectedInput
	}
	if len(refs) > domain.MaxInputRefs {
		return &TooManyInputsError{Count: len(refs)}
	}
	caption = strings.TrimSpace(caption)

	switch s.Current() {
	case StepIdle, StepConfiguring, StepSelectingRatio, StepAwaitingCaption:
		if caption != "" {
			s.configure(caption, refs, preferred)
			return nil
		}
		s.reset(StepAwaitingCaption)
		s.InputRefs = refs
	case StepWizardBase:
		s.InputRefs = []string{refs[0]}
		s.Step = StepWizardReference
	case StepWizardReference:
		if len(s.InputRefs) == 0 {
			s.InputRefs = []string{refs[0]}
			return nil
		}
		s.InputRefs = []string{s.InputRefs[0], refs[0]}
		s.Step = StepWizardDescription
	case StepWizardDescription, StepAwaitingEditInstruction:
		return ErrUnexpectedInput
	default:
		return ErrInvalidTransition
	}
	return nil
}

// StartWizard begins the replace-object flow from any step.
func (s *State) StartWizard() {
	s.reset(StepWizardBase)
}

// BeginEdit waits for an instruction that edits artifactRef.
func (s *State) BeginEdit(artifactRef string) error {
	artifactRef = strings.TrimSpace(artifactRef)
	if artifactRef == "" {
		return ErrUnexpectedInput
	}
	s.reset(StepAwaitingEditInstruction)
	s.InputRefs = []string{artifactRef}
	return nil
}

// Cancel clears everything and returns to Idle.
func (s *State) Cancel() {
	s.reset(StepIdle)
}

func (s *State) configuring() bool {
	step := s.Current()
	return step == StepConfiguring || step == StepSelectingRatio
}

// ToggleTier switches between standard and pro without leaving the step.
func (s *State) ToggleTier() (domain.Tier, error) {
	if !s.configuring() {
		return "", ErrInvalidTransition
	}
	s.Tier = domain.ParseTier(string(s.Tier)).Toggle()
	return s.Tier, nil
}

// CycleQuality advances the pro-tier quality.
func (s *State) CycleQuality() (Quality, error) {
	if !s.configuring() {
		return "", ErrInvalidTransition
	}
	s.Quality = s.Quality.Next()
	return s.Quality, nil
}

// OpenRatio enters the ratio menu.
func (s *State) OpenRatio() error {
	if !s.configuring() {
		return ErrInvalidTransition
	}
	s.Step = StepSelectingRatio
	return nil
}

// SetRatio stores ratio and returns to Configuring.
func (s *State) SetRatio(ratio string) error {
	if !s.configuring() {
		return ErrInvalidTransition
	}
	if !domain.ValidRatio(ratio) {
		return ErrUnknownRatio
	}
	s.Ratio = ratio
	s.Step = StepConfiguring
	return nil
}

// Back leaves the ratio menu unchanged.
func (s *State) Back() error {
	if s.Current() != StepSelectingRatio {
		return ErrInvalidTransition
	}
	s.Step = StepConfiguring
	return nil
}

// Commit freezes the current configuration into generation parameters. The
// state is kept so the same configuration can be started again; every commit
// is priced from the tier selected at that moment.
func (s *State) Commit(costs Costs) (domain.GenerationParams, error) {
	if s.Current() != StepConfiguring {
		return domain.GenerationParams{}, ErrInvalidTransition
	}
	tier := domain.ParseTier(string(s.Tier))
	params := domain.GenerationParams{
		Prompt:     s.Prompt,
		InputRefs:  append([]string(nil), s.InputRefs...),
		Ratio:      s.Ratio,
		Cost:       costs.For(tier),
		Tier:       tier,
		Resolution: s.Quality.Resolution(tier),
	}
	params.Normalize()
	if err := params.Validate(); err != nil {
		return domain.GenerationParams{}, err
	}
	return params, nil
}

// ReplacePrompt builds the replace-object instruction for the wizard.
func ReplacePrompt(object string) string {
	return fmt.Sprintf("Replace the %s in the first image with content from the second. "+
		"Seamless blending, maintain natural lighting and perspective.", strings.TrimSpace(object))
}
