package auth

import (
	"errors"
	"testing"
	"time"
)

var testStateKey = []byte("test-state-key-for-unit-tests-only")

func TestStateSigner_RoundTrip(t *testing.T) {
	s := NewStateSigner(testStateKey, time.Minute)
	state, err := s.Issue()
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if err := s.Verify(state); err != nil {
		t.Errorf("expected valid state, got %v", err)
	}
}

func TestStateSigner_UniquePerIssue(t *testing.T) {
	s := NewStateSigner(testStateKey, time.Minute)
	a, _ := s.Issue()
	b, _ := s.Issue()
	if a == b {
		t.Error("expected distinct states")
	}
}

func TestStateSigner_WrongKey(t *testing.T) {
	state, err := NewStateSigner(testStateKey, time.Minute).Issue()
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	err = NewStateSigner([]byte("another-key"), time.Minute).Verify(state)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestStateSigner_Expired(t *testing.T) {
	s := NewStateSigner(testStateKey, time.Minute)
	issued := time.Now().Add(-time.Hour)
	s.now = func() time.Time { return issued }
	state, err := s.Issue()
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	s.now = time.Now
	if err := s.Verify(state); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for expired state, got %v", err)
	}
}

func TestStateSigner_Garbage(t *testing.T) {
	s := NewStateSigner(testStateKey, time.Minute)
	if err := s.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}
