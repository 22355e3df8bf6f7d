package services

import (
	"testing"

	"clinicflow/internal/clinicerr"
	"clinicflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickUniqueNeverRepeats(t *testing.T) {
	st := setupStore(t)
	seedMessages(t, st, models.DefaultNudge, "a name a", "b name b", "c name c")
	catalog := NewMessageCatalog(st, seededRand())

	used := map[string]bool{}
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		text, err := catalog.PickUnique(models.DefaultNudge, used)
		require.NoError(t, err)
		assert.False(t, seen[text], "text %q repeated", text)
		seen[text] = true
	}

	_, err := catalog.PickUnique(models.DefaultNudge, used)
	assert.ErrorIs(t, err, clinicerr.ErrExhaustedPool)
}

func TestPickUniqueEmptyCategory(t *testing.T) {
	st := setupStore(t)
	catalog := NewMessageCatalog(st, seededRand())

	_, err := catalog.PickUnique(models.ReEngagement, map[string]bool{})
	assert.ErrorIs(t, err, clinicerr.ErrEmptyCategory)
}

func TestRenderSubstitution(t *testing.T) {
	withDisplay := &models.User{UserName: "sara88", DisplayName: "Sara"}
	assert.Equal(t, "Hi Sara, see you soon Sara!", Render("Hi name, see you soon name!", withDisplay))

	plain := &models.User{UserName: "sara88"}
	assert.Equal(t, "Hi sara88!", Render("Hi name!", plain))
}
