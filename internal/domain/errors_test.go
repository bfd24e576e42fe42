package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsConflict(t *testing.T) {
	if !IsConflict(ErrVersionConflict) {
		t.Fatal("expected bare sentinel to match")
	}
	if !IsConflict(fmt.Errorf("save offer: %w", ErrVersionConflict)) {
		t.Fatal("expected wrapped sentinel to match")
	}
	if IsConflict(ErrStaleAcceptance) {
		t.Fatal("stale acceptance is not a version conflict")
	}
	if IsConflict(nil) {
		t.Fatal("nil is not a conflict")
	}
}

func TestIsNotFound(t *testing.T) {
	for _, err := range []error{ErrOfferNotFound, ErrOrderNotFound, ErrRefundNotFound} {
		if !IsNotFound(err) {
			t.Fatalf("expected %v to be a not-found error", err)
		}
	}
	if IsNotFound(ErrForbidden) {
		t.Fatal("forbidden is not a not-found error")
	}
}

func TestIsRecoverable(t *testing.T) {
	recoverable := []error{
		ErrInvalidTransition,
		ErrStaleAcceptance,
		ErrAlreadyTerminal,
		ErrForbidden,
		ErrNotEligible,
		ErrDuplicateRequest,
		ErrInvalidAmount,
		ErrVersionConflict,
		ErrUpstreamFailure,
		ErrOfferNotFound,
		fmt.Errorf("negotiate: %w", ErrStaleAcceptance),
	}
	for _, err := range recoverable {
		if !IsRecoverable(err) {
			t.Fatalf("expected %v to be recoverable", err)
		}
	}

	if IsRecoverable(errors.New("corrupted aggregate")) {
		t.Fatal("unknown internal errors must not be recoverable")
	}
}
