package domain

import (
	"fmt"
	"strings"
)

// =============================================================================
// Resource Naming Functions
// =============================================================================

// CommonNetworkName is the host-wide bridge shared by stacks in shared mode.
const CommonNetworkName = "odooghost_bridge"

// ContainerName generates the container name of a stack role.
// Pattern: {stack}_{role}
//
// Example:
//
//	ContainerName("demo", "odoo") // returns "demo_odoo"
func ContainerName(stack, role string) string {
	return fmt.Sprintf("%s_%s", stack, role)
}

// VolumeName generates the data volume name of a stack role.
// Pattern: {stack}_{role}_data
//
// Example:
//
//	VolumeName("demo", "db") // returns "demo_db_data"
func VolumeName(stack, role string) string {
	return fmt.Sprintf("%s_%s_data", stack, role)
}

// OneOffContainerName generates the name of a throwaway run container.
// Pattern: {stack}_{role}_run_{suffix}
func OneOffContainerName(stack, role, suffix string) string {
	return fmt.Sprintf("%s_%s_run_%s", stack, role, suffix)
}

// ImageTag generates the tag of a stack's custom application image.
// Image references must be lowercase.
//
// Example:
//
//	ImageTag("Demo", "17.0") // returns "odooghost_demo:17.0"
func ImageTag(stack string, version Version) string {
	return strings.ToLower(fmt.Sprintf("odooghost_%s:%s", stack, version))
}

// NetworkName returns the network the stack's containers join.
func (c *StackConfig) NetworkName() string {
	if c.Network.Mode == NetworkScoped {
		return fmt.Sprintf("odooghost_%s", c.Name)
	}
	return CommonNetworkName
}

// Hostname returns the hostname (and network alias) of a role's container.
// Shared networks prefix it with the stack name.
//
// Example:
//
//	shared: Hostname("db") // returns "demo-db"
//	scoped: Hostname("db") // returns "db"
func (c *StackConfig) Hostname(role string) string {
	if c.Network.Mode == NetworkScoped {
		return role
	}
	return fmt.Sprintf("%s-%s", strings.ToLower(c.Name), role)
}
