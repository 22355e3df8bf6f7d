package services

import (
	"fmt"
	"math/rand"
	"strings"

	"clinicflow/internal/clinicerr"
	"clinicflow/internal/models"
	"clinicflow/internal/store"
)

// MessageCatalog picks reminder templates from category pools, never
// repeating a text within one appointment's lifetime.
type MessageCatalog struct {
	store *store.Store
	rng   *rand.Rand
}

// NewMessageCatalog builds a catalog over the message store. rng is
// injectable so tests can pin the draw order.
func NewMessageCatalog(st *store.Store, rng *rand.Rand) *MessageCatalog {
	return &MessageCatalog{store: st, rng: rng}
}

// PickUnique returns a template whose text is not yet in used, chosen
// uniformly at random from the remainder of the pool, and records the pick
// in used. ErrEmptyCategory when the pool has no templates at all,
// ErrExhaustedPool when used already covers the pool — the caller decides
// whether to reset the set or skip the nudge.
func (c *MessageCatalog) PickUnique(category models.MessageCategory, used map[string]bool) (string, error) {
	pool, err := c.store.ListMessagesByCategory(category)
	if err != nil {
		return "", err
	}
	if len(pool) == 0 {
		return "", fmt.Errorf("%w: %s", clinicerr.ErrEmptyCategory, category)
	}

	remaining := make([]string, 0, len(pool))
	for _, tmpl := range pool {
		if !used[tmpl.Text] {
			remaining = append(remaining, tmpl.Text)
		}
	}
	if len(remaining) == 0 {
		return "", fmt.Errorf("%w: %s", clinicerr.ErrExhaustedPool, category)
	}

	text := remaining[c.rng.Intn(len(remaining))]
	used[text] = true
	return text, nil
}

// Render replaces every literal "name" token with the user's display name.
func Render(text string, user *models.User) string {
	return strings.ReplaceAll(text, "name", user.NotifyName())
}
