package debate

// Speaker is an enumerated debate participant tag. Rotation is table-driven
// on the tag, never inferred from transcript text.
type Speaker string

const (
	SpeakerBull Speaker = "bull"
	SpeakerBear Speaker = "bear"

	SpeakerAggressive   Speaker = "aggressive"
	SpeakerConservative Speaker = "conservative"
	SpeakerNeutral      Speaker = "neutral"
)

var debateRotation = map[Speaker]Speaker{
	SpeakerBull: SpeakerBear,
	SpeakerBear: SpeakerBull,
}

var riskRotation = map[Speaker]Speaker{
	SpeakerAggressive:   SpeakerConservative,
	SpeakerConservative: SpeakerNeutral,
	SpeakerNeutral:      SpeakerAggressive,
}

// NextDebateSpeaker alternates Bull and Bear.
func NextDebateSpeaker(s Speaker) Speaker { return debateRotation[s] }

// NextRiskSpeaker advances the fixed Aggressive, Conservative, Neutral cycle.
func NextRiskSpeaker(s Speaker) Speaker { return riskRotation[s] }
