package policy

// DefaultMassChangeThreshold is the mutation count above which the
// mass-change policy warns.
const DefaultMassChangeThreshold = 25

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		protectedEnvironmentsPolicy(),
		massChangePolicy(),
		uniqueTitlesPolicy(),
	}
}

// protectedEnvironmentsPolicy denies destroys in protected environments.
func protectedEnvironmentsPolicy() Policy {
	return Policy{
		Name:        "protected-environments",
		Description: "Denies destroying spaces in environments marked as protected",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"safety", "destroy"},
		Rego: `package genieforge.policies.protected

import rego.v1

deny contains violation if {
	input.operation == "destroy"
	input.environment in input.context.protected_environments
	some item in input.items
	violation := {
		"message": sprintf("Space '%s' cannot be destroyed in protected environment '%s'", [item.logical_id, input.environment]),
		"severity": "error",
		"resource": item.logical_id,
	}
}
`,
	}
}

// massChangePolicy warns when one run touches many spaces.
func massChangePolicy() Policy {
	return Policy{
		Name:        "mass-change",
		Description: "Warns when a single run would change or destroy many spaces",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"safety"},
		Rego: `package genieforge.policies.mass_change

import rego.v1

mutations := [item |
	some item in input.items
	item.action != "NO_CHANGE"
]

deny contains violation if {
	threshold := input.context.mass_change_threshold
	threshold > 0
	count(mutations) > threshold
	violation := {
		"message": sprintf("%d spaces would be changed by %s in '%s' (threshold %d)", [count(mutations), input.operation, input.environment, threshold]),
		"severity": "warning",
	}
}
`,
	}
}

// uniqueTitlesPolicy warns when two configs share a title.
func uniqueTitlesPolicy() Policy {
	return Policy{
		Name:        "unique-titles",
		Description: "Warns when two spaces in the same environment share a title",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"naming"},
		Rego: `package genieforge.policies.titles

import rego.v1

deny contains violation if {
	input.operation == "apply"
	some i, j
	a := input.items[i]
	b := input.items[j]
	i < j
	a.title != ""
	lower(a.title) == lower(b.title)
	violation := {
		"message": sprintf("Spaces '%s' and '%s' share the title '%s'", [a.logical_id, b.logical_id, a.title]),
		"severity": "warning",
		"resource": b.logical_id,
	}
}
`,
	}
}
