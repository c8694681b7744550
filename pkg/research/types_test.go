package research

import "testing"

func TestLookupStatusRecognizesKnownValues(t *testing.T) {
	st, ok := LookupStatus("completed")
	if !ok || st != StatusCompleted {
		t.Errorf("LookupStatus(completed) = %q, %v, want %q, true", st, ok, StatusCompleted)
	}
	st, ok = LookupStatus("in_progress")
	if !ok || st != StatusRunning {
		t.Errorf("LookupStatus(in_progress) = %q, %v, want %q, true", st, ok, StatusRunning)
	}
	st, ok = LookupStatus("failed")
	if !ok || st != StatusFailed {
		t.Errorf("LookupStatus(failed) = %q, %v, want %q, true", st, ok, StatusFailed)
	}
}

func TestLookupStatusIsCaseInsensitive(t *testing.T) {
	st, ok := LookupStatus("COMPLETED")
	if !ok || st != StatusCompleted {
		t.Errorf("LookupStatus(COMPLETED) = %q, %v, want %q, true", st, ok, StatusCompleted)
	}
	st, ok = LookupStatus("In_Progress")
	if !ok || st != StatusRunning {
		t.Errorf("LookupStatus(In_Progress) = %q, %v, want %q, true", st, ok, StatusRunning)
	}
}

func TestLookupStatusRejectsUnknownValues(t *testing.T) {
	if _, ok := LookupStatus("queued"); ok {
		t.Error("LookupStatus(queued) reported ok for an unknown status")
	}
	if _, ok := LookupStatus(""); ok {
		t.Error("LookupStatus(\"\") reported ok for an empty status")
	}
}

func TestParseStatusDefaultsToCompleted(t *testing.T) {
	if st := ParseStatus(""); st != StatusCompleted {
		t.Errorf("ParseStatus(\"\") = %q, want %q", st, StatusCompleted)
	}
	if st := ParseStatus("some_future_state"); st != StatusCompleted {
		t.Errorf("ParseStatus(some_future_state) = %q, want %q", st, StatusCompleted)
	}
	if st := ParseStatus("in_progress"); st != StatusRunning {
		t.Errorf("ParseStatus(in_progress) = %q, want %q", st, StatusRunning)
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, st := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		if !st.Terminal() {
			t.Errorf("%q.Terminal() = false, want true", st)
		}
	}
	for _, st := range []Status{StatusPending, StatusRunning} {
		if st.Terminal() {
			t.Errorf("%q.Terminal() = true, want false", st)
		}
	}
}
