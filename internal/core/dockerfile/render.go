// Package dockerfile renders the build file of a stack's custom application
// image from its version, dependencies and addon layout.
package dockerfile

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/odooghost/odooghost/internal/core/domain"
)

//go:embed Dockerfile.tmpl
var dockerfileTemplate string

var tmpl = template.Must(template.New("Dockerfile").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(dockerfileTemplate))

// breakSystemPackagesFrom is the first release whose base image refuses
// system-wide pip installs without --break-system-packages.
const breakSystemPackagesFrom = 18

// Params are the inputs of the build file.
type Params struct {
	OdooVersion         domain.Version
	AptPackages         []string
	KeepAptArchives     bool
	PipPackages         []string
	RequirementFiles    []domain.RequirementFile
	CopyAddons          []domain.AddonSource
	MountAddons         []domain.AddonSource
	AddonsPath          string
	BreakSystemPackages bool
}

// ParamsFor derives the build parameters of an application config.
func ParamsFor(app *domain.ApplicationConfig, copyAddons, mountAddons []domain.AddonSource, addonsPath string) Params {
	return Params{
		OdooVersion:         app.Version,
		AptPackages:         app.Dependencies.Apt,
		KeepAptArchives:     app.Dependencies.AptArchived,
		PipPackages:         app.Dependencies.PipPackages(),
		RequirementFiles:    app.Dependencies.RequirementFiles(),
		CopyAddons:          copyAddons,
		MountAddons:         mountAddons,
		AddonsPath:          addonsPath,
		BreakSystemPackages: app.Version.Major() >= breakSystemPackagesFrom,
	}
}

// Render executes the embedded template.
func Render(p Params) (string, error) {
	if p.OdooVersion == "" {
		return "", fmt.Errorf("dockerfile: odoo version is required")
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("dockerfile: render: %w", err)
	}
	return buf.String(), nil
}
