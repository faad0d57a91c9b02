package pipeline

import (
	"regexp"
	"sort"

	"voicedesk-platform/internal/records"
)

// RedactionPolicy detects sensitive spans in a transcript.
//
// The policy is a pluggable capability: implementations return the ordered
// segments to redact and the orchestrator stores them on the record. Segment
// offsets are in audio seconds.
type RedactionPolicy interface {
	Scan(transcript string, durationSeconds int) []records.RedactedSegment
}

// PatternRule pairs a detection pattern with the reason stored on the segment.
type PatternRule struct {
	Reason  string
	Pattern *regexp.Regexp
}

// DefaultPatternRules cover common PII shapes spoken into voicemail.
func DefaultPatternRules() []PatternRule {
	return []PatternRule{
		{Reason: "ssn", Pattern: regexp.MustCompile(`\b\d{3}[- ]\d{2}[- ]\d{4}\b`)},
		{Reason: "card_number", Pattern: regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)},
		{Reason: "dob", Pattern: regexp.MustCompile(`(?i)\bdate of birth\b`)},
	}
}

// RegexPolicy scans transcripts with a fixed rule set.
//
// Audio offsets are estimated proportionally from character offsets: the
// transcription service does not return word timings, so a match at 50% of
// the text maps to 50% of the audio. Good enough to mute the right region.
type RegexPolicy struct {
	Rules []PatternRule
}

func NewRegexPolicy(extra ...PatternRule) *RegexPolicy {
	return &RegexPolicy{Rules: append(DefaultPatternRules(), extra...)}
}

func (p *RegexPolicy) Scan(transcript string, durationSeconds int) []records.RedactedSegment {
	if transcript == "" || durationSeconds <= 0 {
		return nil
	}

	total := float64(len(transcript))
	dur := float64(durationSeconds)

	var out []records.RedactedSegment
	for _, rule := range p.Rules {
		for _, loc := range rule.Pattern.FindAllStringIndex(transcript, -1) {
			start := dur * float64(loc[0]) / total
			end := dur * float64(loc[1]) / total
			// widen by a second each side so clipped speech stays covered
			start -= 1
			end += 1
			if start < 0 {
				start = 0
			}
			if end > dur {
				end = dur
			}
			out = append(out, records.RedactedSegment{StartSec: start, EndSec: end, Reason: rule.Reason})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartSec < out[j].StartSec })
	return out
}
