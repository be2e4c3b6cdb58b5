package compose

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Project Building
// =============================================================================

// BuildProject converts an export into a compose-go project.
// This is a pure function - no I/O, no side effects.
func BuildProject(exp Export) (*types.Project, error) {
	if len(exp.Services) == 0 {
		return nil, ErrNoServices
	}
	if err := validateServices(exp.Services); err != nil {
		return nil, err
	}

	project := &types.Project{
		Name:     strings.ToLower(exp.Name),
		Services: types.Services{},
		Networks: types.Networks{},
		Volumes:  types.Volumes{},
	}

	project.Networks[exp.Network.Name] = types.NetworkConfig{
		Name:     exp.Network.Name,
		External: types.External(exp.Network.External),
		Labels:   labelsOf(exp.Network.Labels),
	}
	for _, v := range exp.Volumes {
		project.Volumes[v.Name] = types.VolumeConfig{
			Name:   v.Name,
			Labels: labelsOf(v.Labels),
		}
	}

	for _, svc := range exp.Services {
		project.Services[svc.Name] = convertService(svc, exp.Network.Name)
	}
	return project, nil
}

func convertService(svc Service, network string) types.ServiceConfig {
	out := types.ServiceConfig{
		Name:          svc.Name,
		ContainerName: svc.ContainerName,
		Image:         svc.Image,
		Hostname:      svc.Hostname,
		Command:       types.ShellCommand(svc.Command),
		Environment:   types.MappingWithEquals{},
		Labels:        labelsOf(svc.Labels),
		Tty:           svc.Tty,
		Networks: map[string]*types.ServiceNetworkConfig{
			network: {Aliases: svc.Aliases},
		},
	}

	for k, v := range svc.Environment {
		value := v
		out.Environment[k] = &value
	}

	for _, p := range svc.Ports {
		port := types.ServicePortConfig{
			Target:   p.Target,
			Protocol: p.Protocol,
			Mode:     "ingress",
		}
		if p.Published != 0 {
			port.Published = strconv.FormatUint(uint64(p.Published), 10)
		}
		out.Ports = append(out.Ports, port)
	}

	for _, v := range svc.Volumes {
		out.Volumes = append(out.Volumes, types.ServiceVolumeConfig{
			Type:     string(v.Type),
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	if len(svc.DependsOn) > 0 {
		out.DependsOn = types.DependsOnConfig{}
		for _, dep := range svc.DependsOn {
			out.DependsOn[dep] = types.ServiceDependency{
				Condition: types.ServiceConditionStarted,
				Required:  true,
			}
		}
	}
	return out
}

func labelsOf(m map[string]string) types.Labels {
	if len(m) == 0 {
		return nil
	}
	out := types.Labels{}
	for k, v := range m {
		out[k] = v
	}
	return out
}

// validateServices checks images, ports and dependencies.
func validateServices(services []Service) error {
	declared := map[string]bool{}
	for _, svc := range services {
		declared[svc.Name] = true
	}

	for _, svc := range services {
		if svc.Image == "" {
			return NewExportError("services."+svc.Name, "service must have an image", ErrServiceNoImage)
		}
		for i, port := range svc.Ports {
			field := fmt.Sprintf("services.%s.ports[%d]", svc.Name, i)
			if port.Target == 0 || port.Target > 65535 {
				return NewExportError(field, "target port must be within 1-65535", ErrServiceInvalidPort)
			}
			if port.Published > 65535 {
				return NewExportError(field, "published port must be <= 65535", ErrServiceInvalidPort)
			}
		}
		for _, dep := range svc.DependsOn {
			if !declared[dep] {
				return NewExportError("services."+svc.Name+".depends_on", "unknown service "+dep, ErrUnknownDependency)
			}
		}
	}
	return detectCircularDependencies(services)
}

// detectCircularDependencies detects circular dependencies in service dependencies
func detectCircularDependencies(services []Service) error {
	deps := make(map[string][]string)
	for _, svc := range services {
		deps[svc.Name] = svc.DependsOn
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycle func(node string) bool
	hasCycle = func(node string) bool {
		visited[node] = true
		recStack[node] = true

		for _, dep := range deps[node] {
			if dep == node {
				return true
			}
			if !visited[dep] {
				if hasCycle(dep) {
					return true
				}
			} else if recStack[dep] {
				return true
			}
		}

		recStack[node] = false
		return false
	}

	for _, svc := range services {
		if !visited[svc.Name] {
			if hasCycle(svc.Name) {
				return ErrCircularDependency
			}
		}
	}
	return nil
}

// =============================================================================
// Rendering
// =============================================================================

// Render marshals a project to compose YAML and checks that the result loads
// back as a valid compose file.
func Render(project *types.Project) ([]byte, error) {
	out, err := project.MarshalYAML()
	if err != nil {
		return nil, NewExportError("", err.Error(), ErrInvalidYAML)
	}
	if _, err := Load(out, project.Name); err != nil {
		return nil, err
	}
	return out, nil
}

// Load parses compose YAML in memory, without touching referenced files.
func Load(content []byte, projectName string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal(content, &dict); err != nil || dict == nil {
		return nil, NewExportError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: content,
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName(projectName, true)
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		if strings.Contains(err.Error(), "dependency cycle detected") {
			return nil, NewExportError("", "circular dependency detected", ErrCircularDependency)
		}
		return nil, NewExportError("", err.Error(), ErrInvalidYAML)
	}
	return project, nil
}

// ServiceNames returns the project's service names, sorted.
func ServiceNames(project *types.Project) []string {
	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
