package bootstrap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// RoleSpec names a role and the permissions it is created with.
type RoleSpec struct {
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

// Policy is the role catalog seeded on startup.
type Policy struct {
	Roles     []RoleSpec `yaml:"roles"`
	AdminRole string     `yaml:"admin_role"`
}

// DefaultPolicy returns Admin with every core permission, Editor with a
// reduced set and Viewer with the dashboard only.
func DefaultPolicy() Policy {
	return Policy{
		Roles: []RoleSpec{
			{Name: shared.RoleAdmin, Permissions: shared.CoreScopes()},
			{Name: shared.RoleEditor, Permissions: []string{shared.PermDashboardView, shared.PermDataEdit, shared.PermUserRead}},
			{Name: shared.RoleViewer, Permissions: []string{shared.PermDashboardView}},
		},
		AdminRole: shared.RoleAdmin,
	}
}

// LoadPolicy decodes a YAML policy. Unknown fields are rejected.
func LoadPolicy(r io.Reader) (Policy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var p Policy
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return Policy{}, fmt.Errorf("bootstrap: policy is empty")
		}
		return Policy{}, fmt.Errorf("bootstrap: decode policy: %w", err)
	}
	if p.AdminRole == "" {
		p.AdminRole = shared.RoleAdmin
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// LoadPolicyFile reads a policy from path. An empty path yields DefaultPolicy.
func LoadPolicyFile(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("bootstrap: read policy: %w", err)
	}
	return LoadPolicy(bytes.NewReader(raw))
}

// Validate checks that role names are present and unique and that the admin
// role is part of the catalog.
func (p Policy) Validate() error {
	if len(p.Roles) == 0 {
		return fmt.Errorf("%w: policy declares no roles", shared.ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(p.Roles))
	for i, role := range p.Roles {
		name := shared.NormalizeName(role.Name)
		if name == "" {
			return fmt.Errorf("%w: role #%d has no name", shared.ErrInvalidInput, i+1)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: role %q declared twice", shared.ErrInvalidInput, name)
		}
		seen[name] = struct{}{}
	}
	if _, ok := seen[shared.NormalizeName(p.AdminRole)]; !ok {
		return fmt.Errorf("%w: admin role %q is not declared", shared.ErrInvalidInput, p.AdminRole)
	}
	return nil
}
