package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrEmptyMessage is returned for blank or whitespace-only messages.
	ErrEmptyMessage = errors.New("pipeline: empty message")
	// ErrMissingSession is returned when no session id accompanies a turn.
	ErrMissingSession = errors.New("pipeline: missing session id")
	// ErrInvalidSession is returned for session ids outside the allowed shape.
	ErrInvalidSession = errors.New("pipeline: invalid session id")
	// ErrSuspiciousMessage is returned when a message trips the injection guards.
	ErrSuspiciousMessage = errors.New("pipeline: message rejected")
)

var sessionIDRE = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// injectionRE flags markup, script, and template payloads. Chat input is
// plain prose; none of these have a legitimate reason to appear.
var injectionRE = regexp.MustCompile(`(?i)<\s*script|javascript:|on\w+\s*=|<\s*iframe|\{\{.*\}\}|\$\{.*\}|\.\./\.\./`)

// ValidateTurn checks a turn and returns a sanitized copy. Control
// characters are stripped and runs of whitespace collapsed before the
// length check, so padding cannot smuggle an oversized message through.
func ValidateTurn(turn Turn, maxMessageLength int) (Turn, error) {
	if strings.TrimSpace(turn.SessionID) == "" {
		return turn, ErrMissingSession
	}
	if !sessionIDRE.MatchString(turn.SessionID) {
		return turn, ErrInvalidSession
	}

	turn.Message = sanitizeMessage(turn.Message)
	if turn.Message == "" {
		return turn, ErrEmptyMessage
	}
	if maxMessageLength > 0 && len(turn.Message) > maxMessageLength {
		return turn, fmt.Errorf("pipeline: message exceeds %d characters", maxMessageLength)
	}
	if suspicious(turn.Message) {
		return turn, ErrSuspiciousMessage
	}
	return turn, nil
}

// suspicious rejects injection payloads and messages that are mostly
// non-alphanumeric noise.
func suspicious(message string) bool {
	if injectionRE.MatchString(message) {
		return true
	}
	if len(message) < 8 {
		return false
	}
	var special int
	var total int
	for _, r := range message {
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			special++
		}
	}
	return total > 0 && float64(special)/float64(total) > 0.5
}

// truncateReply caps an outbound reply at max bytes on a rune boundary.
func truncateReply(reply string, max int) string {
	if max <= 0 || len(reply) <= max {
		return reply
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(reply[cut]) {
		cut--
	}
	return strings.TrimSpace(reply[:cut])
}

// sanitizeMessage drops control characters and collapses whitespace.
func sanitizeMessage(message string) string {
	var b strings.Builder
	b.Grow(len(message))
	lastSpace := true
	for _, r := range message {
		if unicode.IsControl(r) {
			continue
		}
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}
