package debate

// Turn is one speaker's contribution to a transcript, immutable once
// appended.
type Turn struct {
	Speaker  Speaker `json:"speaker"`
	Text     string  `json:"text"`
	Sequence int     `json:"sequence"`
}

// State is the bookkeeping record of a two-party debate. Round count
// increases by exactly one per turn; the speaker alternates Bull/Bear until
// termination.
type State struct {
	History           []Turn
	BullHistory       []Turn
	BearHistory       []Turn
	CurrentSpeaker    Speaker
	RoundCount        int
	TerminationReason StopReason
}

// NewState starts a debate with Bull speaking first.
func NewState() *State {
	return &State{CurrentSpeaker: SpeakerBull}
}

func (s *State) append(speaker Speaker, text string) {
	turn := Turn{Speaker: speaker, Text: text, Sequence: len(s.History) + 1}
	s.History = append(s.History, turn)
	switch speaker {
	case SpeakerBull:
		s.BullHistory = append(s.BullHistory, turn)
	case SpeakerBear:
		s.BearHistory = append(s.BearHistory, turn)
	}
	s.RoundCount++
}

// Transcript returns the ordered turn texts.
func (s *State) Transcript() []string {
	out := make([]string, len(s.History))
	for i, t := range s.History {
		out[i] = t.Text
	}
	return out
}

// ToUpdate folds the finalized debate into workflow state fields.
func (s *State) ToUpdate() map[string]any {
	return map[string]any{
		"history":            s.History,
		"bull_history":       s.BullHistory,
		"bear_history":       s.BearHistory,
		"current_speaker":    string(s.CurrentSpeaker),
		"round_count":        s.RoundCount,
		"termination_reason": string(s.TerminationReason),
	}
}

// RiskState is the bookkeeping record of the three-party risk debate. The
// speaker cycles Aggressive, Conservative, Neutral deterministically,
// independent of content.
type RiskState struct {
	History             []Turn
	AggressiveHistory   []Turn
	ConservativeHistory []Turn
	NeutralHistory      []Turn
	CurrentSpeaker      Speaker
	RoundCount          int
}

// NewRiskState starts a risk debate with the aggressive party speaking first.
func NewRiskState() *RiskState {
	return &RiskState{CurrentSpeaker: SpeakerAggressive}
}

func (s *RiskState) append(speaker Speaker, text string) {
	turn := Turn{Speaker: speaker, Text: text, Sequence: len(s.History) + 1}
	s.History = append(s.History, turn)
	switch speaker {
	case SpeakerAggressive:
		s.AggressiveHistory = append(s.AggressiveHistory, turn)
	case SpeakerConservative:
		s.ConservativeHistory = append(s.ConservativeHistory, turn)
	case SpeakerNeutral:
		s.NeutralHistory = append(s.NeutralHistory, turn)
	}
	s.RoundCount++
}

// ToUpdate folds the finalized risk debate into workflow state fields.
func (s *RiskState) ToUpdate() map[string]any {
	return map[string]any{
		"history":              s.History,
		"aggressive_history":   s.AggressiveHistory,
		"conservative_history": s.ConservativeHistory,
		"neutral_history":      s.NeutralHistory,
		"current_speaker":      string(s.CurrentSpeaker),
		"round_count":          s.RoundCount,
	}
}
