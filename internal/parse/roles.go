package parse

import (
	"fmt"
	"strings"
)

// Roles recognised in //funch: directives.
const (
	RoleEvolve   = "evolve"
	RoleRun      = "run"
	RoleValidate = "validate"
	RoleScore    = "score"
)

const directivePrefix = "//funch:"

// Binding ties a function name to a role tag. Untagged roles bind the
// function to its own name.
type Binding struct {
	Function string
	Tag      string
}

// RoleTable maps each role to its bindings in source order.
type RoleTable map[string][]Binding

// MissingTagError reports a tag-requiring directive written without one.
type MissingTagError struct {
	Role     string
	Function string
}

func (e *MissingTagError) Error() string {
	return fmt.Sprintf("directive //funch:%s on function %q requires a tag argument", e.Role, e.Function)
}

// ExtractRoles scans every function's doc comment for funch directives and
// returns the role-binding table. Unknown directives are ignored; source
// order is preserved.
func ExtractRoles(p *Program) (RoleTable, error) {
	table := make(RoleTable)
	for _, f := range p.Functions {
		for _, line := range f.Doc {
			role, tag, ok, err := parseDirective(line, f.Name)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			table[role] = append(table[role], Binding{Function: f.Name, Tag: tag})
		}
	}
	return table, nil
}

// parseDirective interprets one doc-comment line. A directive is the fixed
// funch qualifier followed by a role name and, for tagged roles, a single
// literal argument (quoted string or bare identifier).
func parseDirective(line, funcName string) (role, tag string, ok bool, err error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, directivePrefix) {
		return "", "", false, nil
	}
	fields := strings.Fields(strings.TrimPrefix(trimmed, directivePrefix))
	if len(fields) == 0 {
		return "", "", false, nil
	}
	role = fields[0]
	switch role {
	case RoleEvolve, RoleValidate:
		tag = funcName
	case RoleRun:
		// Tagged, but the tag defaults to the function name.
		tag = funcName
		if len(fields) > 1 {
			tag = strings.Trim(fields[1], `"`)
		}
	case RoleScore:
		if len(fields) < 2 {
			return "", "", false, &MissingTagError{Role: role, Function: funcName}
		}
		tag = strings.Trim(fields[1], `"`)
	default:
		return "", "", false, nil
	}
	return role, tag, true, nil
}
