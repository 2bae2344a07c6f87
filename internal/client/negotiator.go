package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/omochice/relay-chat/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// PromptFunc asks the user for a candidate name.
type PromptFunc func(ctx context.Context) (string, error)

// Negotiator picks a display name that is not already in use.
type Negotiator struct {
	// MaxAttempts caps the number of prompts. Zero means unlimited.
	MaxAttempts int
	Log         logrus.FieldLogger
}

// Negotiate prompts until a candidate is accepted. Candidates are stripped
// of all whitespace and accepted when non-empty and not an exact,
// case-sensitive match for a name in offer.
func (n Negotiator) Negotiate(ctx context.Context, offer protocol.UsernameRosterOffer, prompt PromptFunc) (string, error) {
	log := n.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	for attempt := 1; ; attempt++ {
		if n.MaxAttempts > 0 && attempt > n.MaxAttempts {
			return "", fmt.Errorf("%w after %d attempts", ErrTooManyAttempts, n.MaxAttempts)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		candidate, err := prompt(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to prompt for username: %w", err)
		}

		name := NormalizeUsername(candidate)
		switch {
		case name == "":
			log.WithField("attempt", attempt).Debug("Rejected empty username")
		case offer.Taken(name):
			log.WithFields(logrus.Fields{"attempt": attempt, "name": name}).Info("Username already taken")
		default:
			return name, nil
		}
	}
}

// NormalizeUsername removes every whitespace character from s.
func NormalizeUsername(s string) string {
	return strings.Join(strings.Fields(s), "")
}
