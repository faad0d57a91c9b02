package pipeline

import "testing"

func TestRegexPolicy_FindsSSN(t *testing.T) {
	p := NewRegexPolicy()
	transcript := "hello this is bob my social security number is 123-45-6789 thanks bye"

	segs := p.Scan(transcript, 60)
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d: %+v", len(segs), segs)
	}
	if segs[0].Reason != "ssn" {
		t.Fatalf("expected ssn reason, got %q", segs[0].Reason)
	}
	if segs[0].StartSec < 0 || segs[0].EndSec > 60 || segs[0].StartSec >= segs[0].EndSec {
		t.Fatalf("segment out of bounds: %+v", segs[0])
	}
	// the ssn sits past the midpoint of the text, so the audio estimate should too
	if segs[0].StartSec < 30 {
		t.Fatalf("expected segment in the second half of the audio, got %+v", segs[0])
	}
}

func TestRegexPolicy_CleanTranscript(t *testing.T) {
	p := NewRegexPolicy()
	if segs := p.Scan("just calling to say hi", 30); len(segs) != 0 {
		t.Fatalf("expected no segments, got %+v", segs)
	}
}

func TestRegexPolicy_NoDurationNoSegments(t *testing.T) {
	p := NewRegexPolicy()
	if segs := p.Scan("my ssn is 123-45-6789", 0); len(segs) != 0 {
		t.Fatalf("cannot place segments without a duration, got %+v", segs)
	}
}

func TestRegexPolicy_SegmentsOrderedByStart(t *testing.T) {
	p := NewRegexPolicy()
	transcript := "card 4111 1111 1111 1111 and later my ssn 123-45-6789 end of message padding padding"

	segs := p.Scan(transcript, 120)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %+v", segs)
	}
	if segs[0].StartSec > segs[1].StartSec {
		t.Fatalf("segments must be ordered by start: %+v", segs)
	}
}
