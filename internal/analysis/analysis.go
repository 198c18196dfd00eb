package analysis

// CallAnalysis is the transient output of the post-call analysis gate.
// Produced at most once per call, asynchronously; the persistence layer
// merges it into the call record.
type CallAnalysis struct {
	Sentiment      Sentiment `json:"sentiment"`
	SentimentScore int       `json:"sentiment_score"` // 0-100

	Topics      []string `json:"topics,omitempty"`       // max 5
	Objections  []string `json:"objections,omitempty"`   // max 5
	ActionItems []string `json:"action_items,omitempty"` // max 5

	Summary string `json:"summary,omitempty"`

	LeadScore   int     `json:"lead_score"` // 0-100
	CallOutcome Outcome `json:"call_outcome"`
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

type Outcome string

const (
	OutcomeAppointmentBooked Outcome = "appointment_booked"
	OutcomeCallbackRequested Outcome = "callback_requested"
	OutcomeInterested        Outcome = "interested"
	OutcomeNotInterested     Outcome = "not_interested"
	OutcomeVoicemail         Outcome = "voicemail"
	OutcomeWrongNumber       Outcome = "wrong_number"
	OutcomeFollowUpNeeded    Outcome = "follow_up_needed"
	OutcomeUndetermined      Outcome = "undetermined"
)

const (
	// Calls shorter than this are treated as noise/misdials.
	minDurationSeconds = 30
	// Transcripts sparser than this carry no signal worth an LLM call.
	minTranscriptChars = 100

	maxListItems    = 5
	maxItemChars    = 120
	maxSummaryChars = 1000
)

// ShouldAnalyze is the cheap pre-filter deciding whether a finished call is
// worth spending an LLM call on.
func ShouldAnalyze(enabled bool, durationSeconds, transcriptLength int) bool {
	if !enabled {
		return false
	}
	if durationSeconds < minDurationSeconds {
		return false
	}
	if transcriptLength < minTranscriptChars {
		return false
	}
	return true
}
