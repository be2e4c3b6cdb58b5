package stack

import (
	"strings"

	"github.com/compose-spec/compose-go/v2/types"

	"github.com/odooghost/odooghost/internal/core/compose"
	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/core/labels"
)

// ComposeProject describes the stack's service containers as a compose
// project. Remote services are left out.
func (s *Stack) ComposeProject() (*types.Project, error) {
	exp := compose.Export{
		Name: s.Name(),
		Network: compose.Network{
			Name: s.cfg.NetworkName(),
			// The shared bridge outlives any single stack.
			External: s.cfg.Network.Mode != domain.NetworkScoped,
		},
	}
	if !exp.Network.External {
		exp.Network.Labels = labels.ForStack(s.Name())
	}

	dbLocal := !s.cfg.Services.DB.IsRemote()
	for _, svc := range s.services {
		if svc.IsRemote() {
			continue
		}
		spec, err := svc.ContainerSpec(false, nil)
		if err != nil {
			return nil, err
		}

		out := compose.Service{
			Name:          svc.Role(),
			ContainerName: spec.Name,
			Image:         spec.Image,
			Hostname:      spec.Hostname,
			Command:       spec.Command,
			Environment:   spec.Env,
			Aliases:       spec.NetworkAliases[exp.Network.Name],
			Labels:        spec.Labels,
			Tty:           spec.Tty,
		}
		for _, p := range spec.Ports {
			out.Ports = append(out.Ports, compose.Port{
				Target:    uint32(p.ContainerPort),
				Published: uint32(p.HostPort),
				Protocol:  p.Protocol,
			})
		}
		for _, m := range spec.Volumes {
			mount := compose.VolumeMount{Source: m.Source, Target: m.Target, ReadOnly: m.ReadOnly}
			if strings.HasPrefix(m.Source, "/") {
				mount.Type = compose.VolumeMountTypeBind
			} else {
				mount.Type = compose.VolumeMountTypeVolume
				exp.Volumes = append(exp.Volumes, compose.Volume{
					Name:   m.Source,
					Labels: labels.ForService(s.Name(), svc.Role()),
				})
			}
			out.Volumes = append(out.Volumes, mount)
		}
		if dbLocal && svc.Role() != domain.RoleDatabase {
			out.DependsOn = []string{domain.RoleDatabase}
		}
		exp.Services = append(exp.Services, out)
	}

	project, err := compose.BuildProject(exp)
	if err != nil {
		return nil, NewStackError("compose", s.Name(), "", err, nil)
	}
	return project, nil
}

// ComposeYAML renders ComposeProject.
func (s *Stack) ComposeYAML() ([]byte, error) {
	project, err := s.ComposeProject()
	if err != nil {
		return nil, err
	}
	return compose.Render(project)
}
