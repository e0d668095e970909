package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed roles.yaml
var defaultRolesYAML []byte

// RoleKind identifies one of the three worker roles.
type RoleKind string

const (
	RolePlanner RoleKind = "planner"
	RoleCoder   RoleKind = "coder"
	RoleTester  RoleKind = "tester"
)

// AllRoles lists the roles in pipeline order.
var AllRoles = []RoleKind{RolePlanner, RoleCoder, RoleTester} //nolint:gochecknoglobals

// Role is the static, immutable text that frames every invocation of a worker.
type Role struct {
	Kind           RoleKind `yaml:"-"`
	Name           string   `yaml:"name"`
	Title          string   `yaml:"title"`
	Description    string   `yaml:"description"`
	ToolFormatting string   `yaml:"-"`
}

// Label is the text placed in the role tag: the title, or the name when no title is set.
func (r Role) Label() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

// RolePack is the parsed roles.yaml.
type RolePack struct {
	ToolFormatting string            `yaml:"tool_formatting"`
	Roles          map[RoleKind]Role `yaml:"roles"`
}

// Get returns the role for kind with the shared tool-formatting text attached.
func (p *RolePack) Get(kind RoleKind) (Role, error) {
	r, ok := p.Roles[kind]
	if !ok {
		return Role{}, fmt.Errorf("role %q not defined", kind)
	}
	r.Kind = kind
	r.ToolFormatting = p.ToolFormatting
	return r, nil
}

// DefaultRoles returns the embedded role pack.
func DefaultRoles() (*RolePack, error) {
	return ParseRoles(defaultRolesYAML)
}

// LoadRoles reads a role pack from path, or the embedded pack when path is empty.
func LoadRoles(path string) (*RolePack, error) {
	if path == "" {
		return DefaultRoles()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles file: %w", err)
	}
	return ParseRoles(data)
}

// ParseRoles parses and validates a YAML role pack.
func ParseRoles(data []byte) (*RolePack, error) {
	var pack RolePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse roles: %w", err)
	}
	for _, kind := range AllRoles {
		r, ok := pack.Roles[kind]
		if !ok {
			return nil, fmt.Errorf("roles: missing %q", kind)
		}
		if r.Name == "" || r.Description == "" {
			return nil, fmt.Errorf("roles: %q needs a name and a description", kind)
		}
	}
	return &pack, nil
}
