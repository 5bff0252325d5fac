// ABOUTME: Canonical thread identity for two-party conversations
// ABOUTME: Derives an order-independent thread id so both sides compute it locally

package thread

import (
	"errors"
	"fmt"
	"strings"
)

// Delimiter joins the two participant ids inside a thread id. It is not a
// valid character inside user ids, so the id splits back unambiguously.
const Delimiter = "|"

// ErrSameParticipant is returned when both participants are the same user.
// A thread always has exactly two distinct participants.
var ErrSameParticipant = errors.New("thread participants must be distinct")

// ErrMalformedID is returned when a string is not a well-formed thread id.
var ErrMalformedID = errors.New("malformed thread id")

// ID is a canonical thread identifier: the lexicographically sorted,
// delimiter-joined pair of the two participant ids.
type ID string

// Resolve derives the canonical thread id for two participants.
// It is commutative: Resolve(a, b) == Resolve(b, a). Either side can compute
// the id locally without a server round trip, so a room can be joined before
// the first message is dispatched.
func Resolve(userA, userB string) (ID, error) {
	if userA == "" || userB == "" {
		return "", fmt.Errorf("%w: empty participant id", ErrMalformedID)
	}
	if strings.Contains(userA, Delimiter) || strings.Contains(userB, Delimiter) {
		return "", fmt.Errorf("%w: participant id contains %q", ErrMalformedID, Delimiter)
	}
	if userA == userB {
		return "", ErrSameParticipant
	}
	if userA > userB {
		userA, userB = userB, userA
	}
	return ID(userA + Delimiter + userB), nil
}

// Participants splits a thread id back into its two participant ids.
func Participants(id ID) (string, string, error) {
	a, b, ok := strings.Cut(string(id), Delimiter)
	if !ok || a == "" || b == "" || strings.Contains(b, Delimiter) {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedID, id)
	}
	if a == b || a > b {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedID, id)
	}
	return a, b, nil
}

// Counterpart returns the other participant of a thread. It errors if userID
// is not a participant of the thread.
func Counterpart(id ID, userID string) (string, error) {
	a, b, err := Participants(id)
	if err != nil {
		return "", err
	}
	switch userID {
	case a:
		return b, nil
	case b:
		return a, nil
	default:
		return "", fmt.Errorf("user %q is not a participant of thread %q", userID, id)
	}
}

// HasParticipant reports whether userID is one of the thread's participants.
func HasParticipant(id ID, userID string) bool {
	a, b, err := Participants(id)
	if err != nil {
		return false
	}
	return userID == a || userID == b
}
