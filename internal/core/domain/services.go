package domain

import "fmt"

// =============================================================================
// Roles
// =============================================================================

// Role names, also used as service names in labels and container names.
const (
	RoleDatabase    = "db"
	RoleApplication = "odoo"
	RoleMail        = "mail"
)

// ServiceConfig is the part every role config shares.
type ServiceConfig interface {
	// Port returns the fixed host port to publish, or nil.
	Port() *int
}

// =============================================================================
// Database
// =============================================================================

// DatabaseType tells whether odooghost runs the database itself.
type DatabaseType string

const (
	DatabaseLocal  DatabaseType = "local"
	DatabaseRemote DatabaseType = "remote"
)

// Database defaults applied when the declaration leaves them empty.
const (
	DefaultDatabaseName     = "postgres"
	DefaultDatabaseUser     = "odoo"
	DefaultDatabasePassword = "odoo"
)

// DatabaseConfig declares the PostgreSQL role.
type DatabaseConfig struct {
	Type        DatabaseType `json:"type,omitempty" yaml:"type,omitempty"`
	Version     int          `json:"version,omitempty" yaml:"version,omitempty"`
	Host        string       `json:"host,omitempty" yaml:"host,omitempty"`
	User        string       `json:"user,omitempty" yaml:"user,omitempty"`
	DB          string       `json:"db,omitempty" yaml:"db,omitempty"`
	Password    string       `json:"password,omitempty" yaml:"password,omitempty"`
	ServicePort *int         `json:"service_port,omitempty" yaml:"service_port,omitempty"`
}

func (c *DatabaseConfig) Port() *int { return c.ServicePort }

// IsRemote reports whether the database is managed outside odooghost.
func (c *DatabaseConfig) IsRemote() bool { return c.Type == DatabaseRemote }

// DatabaseName returns the configured database or the default.
func (c *DatabaseConfig) DatabaseName() string {
	if c.DB != "" {
		return c.DB
	}
	return DefaultDatabaseName
}

// Username returns the configured user or the default.
func (c *DatabaseConfig) Username() string {
	if c.User != "" {
		return c.User
	}
	return DefaultDatabaseUser
}

// Secret returns the configured password or the default.
func (c *DatabaseConfig) Secret() string {
	if c.Password != "" {
		return c.Password
	}
	return DefaultDatabasePassword
}

func (c *DatabaseConfig) validate() error {
	if c.Type == "" {
		c.Type = DatabaseLocal
	}
	switch c.Type {
	case DatabaseLocal:
		if c.Version <= 0 {
			return NewConfigError("services.db.version", "a local database requires a version", ErrUnsupportedVersion)
		}
	case DatabaseRemote:
		if c.Host == "" {
			return NewConfigError("services.db.host", "a remote database requires a host", ErrInvalidDatabase)
		}
	default:
		return NewConfigError("services.db.type", fmt.Sprintf("unknown type %q", c.Type), ErrInvalidDatabase)
	}
	return validatePort("services.db.service_port", c.ServicePort)
}

// =============================================================================
// Application
// =============================================================================

// ApplicationConfig declares the Odoo role.
type ApplicationConfig struct {
	Version      Version            `json:"version" yaml:"version"`
	Cmdline      string             `json:"cmdline,omitempty" yaml:"cmdline,omitempty"`
	Addons       []AddonSource      `json:"addons,omitempty" yaml:"addons,omitempty"`
	Dependencies DependenciesConfig `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	ServicePort  *int               `json:"service_port,omitempty" yaml:"service_port,omitempty"`
}

func (c *ApplicationConfig) Port() *int { return c.ServicePort }

func (c *ApplicationConfig) validate() error {
	if !c.Version.IsSupported() {
		return NewConfigError("services.odoo.version",
			fmt.Sprintf("version %q is not supported", c.Version), ErrUnsupportedVersion)
	}
	for i := range c.Addons {
		field := fmt.Sprintf("services.odoo.addons[%d]", i)
		if err := c.Addons[i].normalize(); err != nil {
			return NewConfigError(field+".path", err.Error(), ErrInvalidAddon)
		}
		if err := c.Addons[i].Validate(field); err != nil {
			return err
		}
	}
	if err := c.Dependencies.normalize(); err != nil {
		return err
	}
	return validatePort("services.odoo.service_port", c.ServicePort)
}

// =============================================================================
// Auxiliary
// =============================================================================

// DefaultMailVersion is the mail capture image tag used when none is given.
const DefaultMailVersion = "latest"

// AuxiliaryConfig declares the mail capture role.
type AuxiliaryConfig struct {
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	ServicePort *int   `json:"service_port,omitempty" yaml:"service_port,omitempty"`
}

func (c *AuxiliaryConfig) Port() *int { return c.ServicePort }

// ImageVersion returns the declared version or DefaultMailVersion.
func (c *AuxiliaryConfig) ImageVersion() string {
	if c.Version != "" {
		return c.Version
	}
	return DefaultMailVersion
}

func (c *AuxiliaryConfig) validate() error {
	return validatePort("services.mail.service_port", c.ServicePort)
}

func validatePort(field string, p *int) error {
	if p != nil && (*p < 1 || *p > 65535) {
		return NewConfigError(field, fmt.Sprintf("port %d out of range", *p), nil)
	}
	return nil
}
