package rpcclient

import "testing"

func TestRetryPolicyDone(t *testing.T) {
	unlimited := Unlimited(0)
	for attempt := 1; attempt <= 1000; attempt += 250 {
		if unlimited.done(attempt) {
			t.Fatalf("an unlimited policy should never report done, attempt %d", attempt)
		}
	}

	bounded := RetryPolicy{MaxTries: 3}
	if bounded.done(2) {
		t.Fatalf("bounded policy should not be done before reaching MaxTries")
	}
	if !bounded.done(3) {
		t.Fatalf("bounded policy should be done once attempts reach MaxTries")
	}
	if !bounded.done(4) {
		t.Fatalf("bounded policy should stay done past MaxTries")
	}

	zeroValue := RetryPolicy{}
	if zeroValue.done(0) {
		t.Fatalf("a zero-value RetryPolicy should allow exactly one attempt before reporting done")
	}
	if !zeroValue.done(1) {
		t.Fatalf("a zero-value RetryPolicy (MaxTries == 0) should mean \"one try only\", per spec.md's pending_nonce retry contract")
	}
}
