// Package policy gates plans and destroys with Open Policy Agent.
//
// Policies are Rego modules whose deny rule yields messages. The engine
// evaluates every enabled policy against a PolicyInput built from the plan:
//
//	{
//	  "operation": "apply",
//	  "environment": "prod",
//	  "items": [{"logical_id": "sales", "action": "UPDATE", "title": "Sales", ...}],
//	  "summary": {"CREATE": 1, "UPDATE": 2},
//	  "context": {"protected_environments": ["prod"], "mass_change_threshold": 25}
//	}
//
// Messages from policies with error or critical severity block the operation.
// Warnings and info messages are reported but never block.
//
// # Built-in policies
//
//   - protected-environments denies destroy in a protected environment
//   - mass-change warns when a plan touches more spaces than the threshold
//   - unique-titles warns when two desired spaces share a title
//
// # Custom policies
//
// LoadPolicies reads the project's policy_dir: .rego files (warning
// severity, description taken from the leading comment block) and .json
// definitions:
//
//	{"name": "freeze", "severity": "error", "rego": "package freeze\n..."}
//
// Loading replaces the previous custom set. A broken file, a duplicate
// name or a name taken by a built-in policy fails the load.
package policy
