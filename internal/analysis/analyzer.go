package analysis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"voiceops-platform/pkg/logger"
)

const (
	defaultAnalyzeTimeout = 25 * time.Second

	systemPrompt = `You analyze transcripts of phone calls handled by AI voice agents.
Respond with a single JSON object with these keys:
"sentiment" (positive|neutral|negative), "sentiment_score" (0-100),
"topics" (up to 5 short strings), "objections" (up to 5 short strings),
"action_items" (up to 5 short strings), "summary" (2-3 sentences),
"lead_score" (0-100), "call_outcome" (appointment_booked|callback_requested|interested|not_interested|voicemail|wrong_number|follow_up_needed|undetermined).`
)

// Analyzer extracts structured signal from call transcripts.
//
// Analyze is best-effort by contract: every failure mode (missing
// credentials, timeout, malformed model output) returns nil rather than an
// error. Call completion must never wait on, or fail because of, analysis.
type Analyzer struct {
	client  ChatClient
	timeout time.Duration
}

func NewAnalyzer(client ChatClient) *Analyzer {
	return &Analyzer{client: client, timeout: defaultAnalyzeTimeout}
}

// Analyze runs the extraction under a hard timeout. A nil result means "no
// analysis available", never a failure the caller has to handle.
func (a *Analyzer) Analyze(ctx context.Context, transcript, agentName string) *CallAnalysis {
	log := logger.From(ctx)
	if a.client == nil || len(transcript) < minTranscriptChars {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	user := "Transcript:\n" + transcript
	if agentName != "" {
		user = "Agent: " + agentName + "\n" + user
	}

	raw, err := a.client.Complete(callCtx, systemPrompt, user)
	if err != nil {
		log.Warn("call analysis skipped", "err", err)
		return nil
	}

	var out CallAnalysis
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &out); err != nil {
		log.Warn("call analysis returned malformed json", "err", err)
		return nil
	}
	sanitize(&out)
	return &out
}

// sanitize clamps and coerces model output into the documented shape instead
// of rejecting the whole result over one bad field.
func sanitize(a *CallAnalysis) {
	a.SentimentScore = clamp(a.SentimentScore)
	a.LeadScore = clamp(a.LeadScore)

	switch a.Sentiment {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
	default:
		a.Sentiment = SentimentNeutral
	}

	switch a.CallOutcome {
	case OutcomeAppointmentBooked, OutcomeCallbackRequested, OutcomeInterested,
		OutcomeNotInterested, OutcomeVoicemail, OutcomeWrongNumber,
		OutcomeFollowUpNeeded, OutcomeUndetermined:
	default:
		a.CallOutcome = OutcomeUndetermined
	}

	a.Topics = capList(a.Topics)
	a.Objections = capList(a.Objections)
	a.ActionItems = capList(a.ActionItems)

	if len(a.Summary) > maxSummaryChars {
		a.Summary = a.Summary[:maxSummaryChars]
	}
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

func capList(items []string) []string {
	out := items[:0]
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if len(s) > maxItemChars {
			s = s[:maxItemChars]
		}
		out = append(out, s)
		if len(out) == maxListItems {
			break
		}
	}
	return out
}

// stripCodeFences tolerates models that wrap JSON in markdown fences despite
// the response_format hint.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
