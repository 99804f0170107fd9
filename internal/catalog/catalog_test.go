package catalog_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/symposium/internal/catalog"
	"github.com/PabloGalante/symposium/internal/domain"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := catalog.Default()
	require.NoError(t, err)

	require.NotEmpty(t, c.List())
	p, ok := c.Get("socrates")
	require.True(t, ok)
	assert.Equal(t, "Socrates", p.DisplayName)
	assert.NotEmpty(t, p.SystemInstruction)

	club, err := c.GroupTarget("debate_club")
	require.NoError(t, err)
	assert.Equal(t, domain.TargetGroup, club.Kind)
	assert.Equal(t, []domain.PersonaID{"plato", "nietzsche", "camus", "sartre", "socrates"}, club.Members)
}

func TestTargets(t *testing.T) {
	c, err := catalog.Default()
	require.NoError(t, err)

	single, err := c.PersonaTarget("kant")
	require.NoError(t, err)
	assert.Equal(t, domain.TargetPersona, single.Kind)
	assert.Equal(t, "kant", single.ID)

	_, err = c.PersonaTarget("hegel")
	assert.ErrorIs(t, err, domain.ErrPersonaNotFound)

	now := time.UnixMilli(1700000000000)
	custom, err := c.CustomTarget([]domain.PersonaID{"kant", "camus"}, now)
	require.NoError(t, err)
	assert.Equal(t, "custom-1700000000000", custom.ID)
	assert.Equal(t, catalog.CustomGroupName, custom.Name)

	_, err = c.CustomTarget([]domain.PersonaID{"kant"}, now)
	assert.Error(t, err)
	_, err = c.CustomTarget([]domain.PersonaID{"kant", "kant"}, now)
	assert.Error(t, err)
}

func TestLoadRejectsBrokenCatalogs(t *testing.T) {
	cases := map[string]string{
		"empty":          "personas: []\n",
		"no prompt":      "personas:\n  - id: a\n    name: A\n",
		"duplicate":      "personas:\n  - {id: a, name: A, system_instruction: x}\n  - {id: a, name: B, system_instruction: y}\n",
		"unknown member": "personas:\n  - {id: a, name: A, system_instruction: x}\ngroups:\n  - {id: g, name: G, members: [a, b]}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := catalog.Load(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}
