// Package domain contains the stack declaration types, their validation and
// the deterministic naming rules derived from them.
// This is part of the Functional Core - all functions are pure with no I/O,
// except path expansion of local addon and requirement paths.
package domain

import "regexp"

// =============================================================================
// Network
// =============================================================================

// NetworkMode tells how a stack's containers are networked.
type NetworkMode string

const (
	// NetworkShared attaches every stack to one host-wide bridge; hostnames
	// are prefixed with the stack name to avoid collisions.
	NetworkShared NetworkMode = "shared"
	// NetworkScoped gives each stack its own bridge.
	NetworkScoped NetworkMode = "scoped"
)

// NetworkConfig declares the stack network.
type NetworkConfig struct {
	Mode NetworkMode `json:"mode" yaml:"mode"`
}

// =============================================================================
// StackConfig
// =============================================================================

var stackNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ServicesConfig holds one config per role. Mail is optional.
type ServicesConfig struct {
	DB   *DatabaseConfig    `json:"db" yaml:"db"`
	Odoo *ApplicationConfig `json:"odoo" yaml:"odoo"`
	Mail *AuxiliaryConfig   `json:"mail,omitempty" yaml:"mail,omitempty"`
}

// StackConfig is the validated declaration of one stack. It is not mutated
// after Validate; an update replaces the registry entry with a new value.
type StackConfig struct {
	Name     string         `json:"name" yaml:"name"`
	Network  NetworkConfig  `json:"network" yaml:"network"`
	Services ServicesConfig `json:"services" yaml:"services"`
}

// ValidateStackName checks a name against the allowed character set.
func ValidateStackName(name string) error {
	if name == "" {
		return NewConfigError("name", "name is required", ErrInvalidName)
	}
	if !stackNamePattern.MatchString(name) {
		return NewConfigError("name", "invalid stack name "+`"`+name+`"`, ErrInvalidName)
	}
	return nil
}

// Validate applies defaults and checks every field.
func (c *StackConfig) Validate() error {
	if err := ValidateStackName(c.Name); err != nil {
		return err
	}

	if c.Network.Mode == "" {
		c.Network.Mode = NetworkShared
	}
	switch c.Network.Mode {
	case NetworkShared, NetworkScoped:
	default:
		return NewConfigError("network.mode", "unknown mode "+string(c.Network.Mode), ErrInvalidNetworkMode)
	}

	if c.Services.DB == nil {
		return NewConfigError("services.db", "database service is required", ErrMissingService)
	}
	if c.Services.Odoo == nil {
		return NewConfigError("services.odoo", "odoo service is required", ErrMissingService)
	}
	if err := c.Services.DB.validate(); err != nil {
		return err
	}
	if err := c.Services.Odoo.validate(); err != nil {
		return err
	}
	if c.Services.Mail != nil {
		if err := c.Services.Mail.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Roles returns the declared roles in creation order: the database first so
// the application can resolve its host.
func (c *StackConfig) Roles() []string {
	roles := []string{RoleDatabase, RoleApplication}
	if c.Services.Mail != nil {
		roles = append(roles, RoleMail)
	}
	return roles
}

// Service returns the config of a role, or nil when it is not declared.
func (c *StackConfig) Service(role string) ServiceConfig {
	switch role {
	case RoleDatabase:
		if c.Services.DB != nil {
			return c.Services.DB
		}
	case RoleApplication:
		if c.Services.Odoo != nil {
			return c.Services.Odoo
		}
	case RoleMail:
		if c.Services.Mail != nil {
			return c.Services.Mail
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c *StackConfig) Clone() *StackConfig {
	out := *c
	if db := c.Services.DB; db != nil {
		cp := *db
		cp.ServicePort = clonePort(db.ServicePort)
		out.Services.DB = &cp
	}
	if app := c.Services.Odoo; app != nil {
		cp := *app
		cp.ServicePort = clonePort(app.ServicePort)
		cp.Addons = append([]AddonSource(nil), app.Addons...)
		cp.Dependencies.Apt = append(StringList(nil), app.Dependencies.Apt...)
		if py := app.Dependencies.Python; py != nil {
			cp.Dependencies.Python = &PythonDependencies{
				List:  append(StringList(nil), py.List...),
				Files: append([]string(nil), py.Files...),
			}
		}
		out.Services.Odoo = &cp
	}
	if mail := c.Services.Mail; mail != nil {
		cp := *mail
		cp.ServicePort = clonePort(mail.ServicePort)
		out.Services.Mail = &cp
	}
	return &out
}

func clonePort(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ApplyLegacyFixes amends configs persisted by older releases.
func (c *StackConfig) ApplyLegacyFixes() {
	if c.Services.Odoo != nil {
		c.Services.Odoo.Dependencies.applyLegacyFixes(c.Services.Odoo.Version)
	}
}
