package firestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/symposium/internal/domain"
)

func TestSessionUpdatesOnlySetFields(t *testing.T) {
	title := "On Justice"
	inferred := true
	ups := sessionUpdates(domain.SessionUpdate{Title: &title, TitleInferred: &inferred})
	require.Len(t, ups, 2)
	assert.Equal(t, "title", ups[0].Path)
	assert.Equal(t, "title_inferred", ups[1].Path)

	assert.Empty(t, sessionUpdates(domain.SessionUpdate{}))
}

func TestSessionDocRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	in := &domain.Session{
		ID:        "s1",
		UserID:    "u1",
		CreatedAt: now,
		UpdatedAt: now,
		Target: domain.ChatTarget{
			Kind:    domain.TargetPersona,
			ID:      "socrates",
			Name:    "Socrates",
			Members: []domain.PersonaID{"socrates"},
		},
		Title:         "Virtue",
		TitleExplicit: true,
		Context: &domain.ChatContext{
			Summary:     []string{"Virtue is knowledge."},
			KeyConcepts: []domain.KeyConcept{{Term: "arete", Definition: "excellence"}},
		},
	}

	out := toSessionDoc(in).toDomain("s1")
	assert.Equal(t, in, out)
}
