package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/opensource-finance/ringwatch/internal/domain"
)

type ruleFile struct {
	Rules []domain.RoleRule `yaml:"rules"`
}

// LoadRoleRules reads role rules from a YAML file of the form
//
//	rules:
//	  - id: collector-fan-in
//	    role: COLLECTOR
//	    priority: 20
//	    expression: in_degree >= 5 && out_degree <= 2
func LoadRoleRules(path string) ([]domain.RoleRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role rules: %w", err)
	}
	return ParseRoleRules(data)
}

// ParseRoleRules decodes YAML role rules.
func ParseRoleRules(data []byte) ([]domain.RoleRule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse role rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("role rules file defines no rules")
	}
	return f.Rules, nil
}
