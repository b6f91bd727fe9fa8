package contracts

import "testing"

func TestIsClosed(t *testing.T) {
	cases := []struct {
		status string
		want   bool
	}{
		{StatusCompleted, true},
		{StatusDeleted, true},
		{StatusCancelled, true},
		{"Cancelled - Client Request", true},
		{"Cancelled - Zero Submissions", true},
		{StatusActive, false},
		{StatusDraft, false},
		{StatusNew, false},
	}
	for _, tc := range cases {
		if got := IsClosed(tc.status); got != tc.want {
			t.Errorf("IsClosed(%q) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestIsActive(t *testing.T) {
	if !IsActive(StatusActive) {
		t.Fatal("Active must be active")
	}
	if IsActive(StatusDraft) || IsActive(StatusCompleted) {
		t.Fatal("non-active statuses reported active")
	}
}
