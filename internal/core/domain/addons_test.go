package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddonSource_NameHashDistinctForSameBasename(t *testing.T) {
	a := AddonSource{Type: AddonLocal, Mode: AddonMount, Path: "/projects/client-a/addons"}
	b := AddonSource{Type: AddonLocal, Mode: AddonMount, Path: "/projects/client-b/addons"}

	assert.Equal(t, a.Name(), b.Name())
	assert.NotEqual(t, a.NameHash(), b.NameHash())
	assert.NotEqual(t, a.ContainerPath(), b.ContainerPath())
	assert.Regexp(t, `^addons_[0-9a-f]{8}$`, a.NameHash())
}

func TestAddonSource_NameHashStable(t *testing.T) {
	a := AddonSource{Type: AddonRemote, Mode: AddonCopy, Origin: "https://github.com/OCA/web.git"}
	assert.Equal(t, a.NameHash(), a.NameHash())
	assert.Equal(t, "web", a.Name())
	assert.Equal(t, "OCA", a.Org())
	assert.Equal(t, "/mnt/copy-addons/"+a.NameHash(), a.ContainerPath())
	assert.Equal(t, "addons/"+a.NameHash(), a.ContextPath())
}

func TestAddonSource_Normalize(t *testing.T) {
	remote := AddonSource{Origin: "git@github.com:OCA/server-tools.git"}
	require.NoError(t, remote.normalize())
	assert.Equal(t, AddonRemote, remote.Type)
	assert.Equal(t, AddonMount, remote.Mode)

	local := AddonSource{Path: "relative/addons"}
	require.NoError(t, local.normalize())
	assert.Equal(t, AddonLocal, local.Type)
	assert.True(t, len(local.Path) > 0 && local.Path[0] == '/')
}

func TestAddonSource_EffectiveBranch(t *testing.T) {
	assert.Equal(t, "17.0", AddonSource{}.EffectiveBranch("17.0"))
	assert.Equal(t, "main", AddonSource{Branch: "main"}.EffectiveBranch("17.0"))
}

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		raw   string
		owner string
		name  string
	}{
		{"https://github.com/OCA/web.git", "OCA", "web"},
		{"https://github.com/OCA/web", "OCA", "web"},
		{"https://gitlab.com/group/sub/repo.git", "sub", "repo"},
		{"ssh://git@github.com/odoo/enterprise.git", "odoo", "enterprise"},
		{"git@github.com:odoo/design-themes.git", "odoo", "design-themes"},
		{"git://example.org/team/addons", "team", "addons"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			repo, err := ParseRepoURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.owner, repo.Owner)
			assert.Equal(t, tt.name, repo.Name)
		})
	}

	for _, raw := range []string{"", "github.com", "ftp://host/a/b", "https://github.com/onlyowner", "not a url"} {
		t.Run("invalid "+raw, func(t *testing.T) {
			_, err := ParseRepoURL(raw)
			assert.Error(t, err)
		})
	}
}
