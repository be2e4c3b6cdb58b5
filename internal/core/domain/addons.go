package domain

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// =============================================================================
// Addon Source Types
// =============================================================================

// AddonType tells where addon code comes from.
type AddonType string

const (
	AddonLocal  AddonType = "local"
	AddonRemote AddonType = "remote"
)

// AddonMode tells how addon code reaches the application container.
type AddonMode string

const (
	// AddonMount bind-mounts the source at runtime.
	AddonMount AddonMode = "mount"
	// AddonCopy bakes the source into the custom image at build time.
	AddonCopy AddonMode = "copy"
)

// AddonSource is one declared addons directory or repository.
type AddonSource struct {
	Type   AddonType `json:"type,omitempty" yaml:"type,omitempty"`
	Mode   AddonMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	Origin string    `json:"origin,omitempty" yaml:"origin,omitempty"`
	Branch string    `json:"branch,omitempty" yaml:"branch,omitempty"`
	Path   string    `json:"path,omitempty" yaml:"path,omitempty"`
}

// IsRemote reports whether the source is fetched from a repository.
func (a AddonSource) IsRemote() bool {
	return a.Type == AddonRemote
}

// Name returns the directory name for local sources and the repository
// name for remote ones.
func (a AddonSource) Name() string {
	if a.IsRemote() {
		if repo, err := ParseRepoURL(a.Origin); err == nil {
			return repo.Name
		}
		return ""
	}
	return path.Base(strings.TrimRight(a.Path, "/"))
}

// Org returns the owner of a remote repository, or "" for local sources.
func (a AddonSource) Org() string {
	if !a.IsRemote() {
		return ""
	}
	if repo, err := ParseRepoURL(a.Origin); err == nil {
		return repo.Owner
	}
	return ""
}

// NameHash returns a unique, readable identifier for the source.
// The hash covers the full path or URL, so two sources sharing a basename
// never collide.
//
// Example:
//
//	AddonSource{Path: "/a/addons"}.NameHash() // returns "addons_<8 hex>"
func (a AddonSource) NameHash() string {
	key := a.Path
	if a.IsRemote() {
		key = a.Origin
	}
	return fmt.Sprintf("%s_%s", a.Name(), Hash(key))
}

// ContainerPath is where the source lives inside the application container.
// Pattern: /mnt/{mode}-addons/{nameHash}
func (a AddonSource) ContainerPath() string {
	return fmt.Sprintf("/mnt/%s-addons/%s", a.Mode, a.NameHash())
}

// ContextPath is the source's location relative to the build context root.
func (a AddonSource) ContextPath() string {
	return "addons/" + a.NameHash()
}

// EffectiveBranch returns the branch to clone: the declared branch, or the
// application version (17.0) as Odoo addon repositories conventionally
// branch by release.
func (a AddonSource) EffectiveBranch(appVersion Version) string {
	if a.Branch != "" {
		return a.Branch
	}
	return appVersion.String()
}

// normalize infers defaults and expands local paths.
func (a *AddonSource) normalize() error {
	if a.Type == "" {
		if a.Origin != "" {
			a.Type = AddonRemote
		} else {
			a.Type = AddonLocal
		}
	}
	if a.Mode == "" {
		a.Mode = AddonMount
	}
	if a.Type == AddonLocal && a.Path != "" {
		p, err := ExpandPath(a.Path)
		if err != nil {
			return err
		}
		a.Path = p
	}
	return nil
}

// Validate checks the declaration shape. Whether a local path exists is
// checked when addons are resolved, not here.
func (a AddonSource) Validate(field string) error {
	switch a.Mode {
	case AddonMount, AddonCopy:
	default:
		return NewConfigError(field+".mode", fmt.Sprintf("unknown mode %q", a.Mode), ErrInvalidAddon)
	}

	switch a.Type {
	case AddonLocal:
		if a.Path == "" {
			return NewConfigError(field+".path", "local addons require a path", ErrInvalidAddon)
		}
		if a.Origin != "" || a.Branch != "" {
			return NewConfigError(field, "local addons cannot declare origin or branch", ErrInvalidAddon)
		}
	case AddonRemote:
		if a.Origin == "" {
			return NewConfigError(field+".origin", "remote addons require an origin", ErrInvalidAddon)
		}
		if _, err := ParseRepoURL(a.Origin); err != nil {
			return NewConfigError(field+".origin", err.Error(), ErrInvalidRepoURL)
		}
	default:
		return NewConfigError(field+".type", fmt.Sprintf("unknown type %q", a.Type), ErrInvalidAddon)
	}
	return nil
}

// =============================================================================
// Repository URLs
// =============================================================================

// RepoURL is the parsed form of a git remote.
type RepoURL struct {
	Host  string
	Owner string
	Name  string
}

// scp-like syntax: git@github.com:odoo/odoo.git
var scpURLPattern = regexp.MustCompile(`^(?:[\w.-]+@)?([\w.-]+):([\w./-]+?)(?:\.git)?/?$`)

// ParseRepoURL validates a git remote and extracts its owner and name.
// Accepted forms are http(s)://, ssh://, git:// and scp-like user@host:path.
func ParseRepoURL(raw string) (RepoURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RepoURL{}, fmt.Errorf("empty repository URL")
	}

	var host, p string
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return RepoURL{}, fmt.Errorf("malformed repository URL %q: %w", raw, err)
		}
		switch u.Scheme {
		case "http", "https", "ssh", "git":
		default:
			return RepoURL{}, fmt.Errorf("unsupported repository URL scheme %q", u.Scheme)
		}
		host, p = u.Hostname(), u.Path
	} else {
		m := scpURLPattern.FindStringSubmatch(raw)
		if m == nil {
			return RepoURL{}, fmt.Errorf("malformed repository URL %q", raw)
		}
		host, p = m[1], m[2]
	}

	p = strings.TrimSuffix(strings.Trim(p, "/"), ".git")
	parts := strings.Split(p, "/")
	if host == "" || len(parts) < 2 || parts[len(parts)-1] == "" || parts[len(parts)-2] == "" {
		return RepoURL{}, fmt.Errorf("repository URL %q must name an owner and a repository", raw)
	}
	return RepoURL{
		Host:  host,
		Owner: parts[len(parts)-2],
		Name:  parts[len(parts)-1],
	}, nil
}
