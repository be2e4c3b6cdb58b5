package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odooghost/odooghost/internal/core/compose"
	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/shell/docker/dockertest"
)

func TestComposeProject(t *testing.T) {
	cfg := testConfig(t, "demo", func(c *domain.StackConfig) {
		c.Services.Odoo.ServicePort = intPtr(8070)
		c.Services.Mail = &domain.AuxiliaryConfig{}
	})
	s := mustStack(t, cfg, testDeps(t, dockertest.NewEngine()))

	project, err := s.ComposeProject()
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "mail", "odoo"}, compose.ServiceNames(project))
	assert.True(t, bool(project.Networks[domain.CommonNetworkName].External))
	assert.Contains(t, project.Volumes, "demo_db_data")

	odoo := project.Services["odoo"]
	assert.Equal(t, "demo_odoo", odoo.ContainerName)
	assert.Equal(t, "odooghost_demo:17.0", odoo.Image)
	assert.Contains(t, odoo.DependsOn, "db")
	require.Len(t, odoo.Ports, 1)
	assert.Equal(t, "8070", odoo.Ports[0].Published)
	assert.Contains(t, project.Services["mail"].DependsOn, "db")
	assert.Empty(t, project.Services["db"].DependsOn)
}

func TestComposeProject_RemoteDatabaseAndScopedNetwork(t *testing.T) {
	cfg := testConfig(t, "demo", func(c *domain.StackConfig) {
		c.Network.Mode = domain.NetworkScoped
		c.Services.DB = &domain.DatabaseConfig{Type: domain.DatabaseRemote, Host: "db.example.com"}
	})
	s := mustStack(t, cfg, testDeps(t, dockertest.NewEngine()))

	project, err := s.ComposeProject()
	require.NoError(t, err)
	assert.Equal(t, []string{"odoo"}, compose.ServiceNames(project))
	assert.Empty(t, project.Services["odoo"].DependsOn)

	net := project.Networks["odooghost_demo"]
	assert.False(t, bool(net.External))
	assert.Equal(t, "demo", net.Labels["com.odooghost.stack"])
}

func TestComposeYAML(t *testing.T) {
	s := mustStack(t, testConfig(t, "demo", nil), testDeps(t, dockertest.NewEngine()))

	out, err := s.ComposeYAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "container_name: demo_db")
	assert.Contains(t, string(out), "image: postgres:15")

	loaded, err := compose.Load(out, "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "odoo"}, compose.ServiceNames(loaded))
}
