package model

import "testing"

func TestMergeStatusTerminalIsSticky(t *testing.T) {
	cases := []struct {
		current, observed, want OrderStatus
	}{
		{StatusActive, StatusExecuted, StatusExecuted},
		{StatusExecuted, StatusActive, StatusExecuted},
		{StatusCancelled, StatusActive, StatusCancelled},
		{StatusCancelled, StatusExecuted, StatusCancelled},
		{StatusError, StatusActive, StatusActive},
		{StatusPending, StatusPartiallyFilled, StatusPartiallyFilled},
	}
	for _, tc := range cases {
		if got := MergeStatus(tc.current, tc.observed); got != tc.want {
			t.Fatalf("MergeStatus(%s, %s) = %s, want %s", tc.current, tc.observed, got, tc.want)
		}
	}
}

func TestOrderRefFromDescription(t *testing.T) {
	if got := OrderRefFromDescription("Margin Funding Payment on wallet funding #41235012"); got != "41235012" {
		t.Fatalf("got %q", got)
	}
	if got := OrderRefFromDescription("Deposit"); got != "" {
		t.Fatalf("got %q", got)
	}
}
