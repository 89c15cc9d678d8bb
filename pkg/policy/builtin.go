package policy

// BuiltinPolicies returns the policies shipped with the binary.
func BuiltinPolicies() []Policy {
	return []Policy{
		untaggedDropletsPolicy(),
		protectedDestroyPolicy(),
	}
}

// untaggedDropletsPolicy flags droplets declared without any tags. Untagged
// droplets are invisible to tag-based firewalls and to the inventory's tag
// groups.
func untaggedDropletsPolicy() Policy {
	return Policy{
		Name:        "untagged-droplets",
		Description: "Droplets should carry at least one tag",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Rego: `package lagoon.policies.tags

import rego.v1

deny contains violation if {
	input.resource.type == "droplet"
	input.resource.state != "absent"
	count(object.get(input.resource, ["spec", "tags"], [])) == 0
	violation := {
		"message": sprintf("droplet %q has no tags", [input.resource.name]),
		"severity": "warning",
	}
}
`,
	}
}

// protectedDestroyPolicy blocks destruction of resources labeled protected.
func protectedDestroyPolicy() Policy {
	return Policy{
		Name:        "protected-destroy",
		Description: "Resources labeled protected=true cannot be destroyed",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Rego: `package lagoon.policies.protected

import rego.v1

deny contains violation if {
	input.resource.state == "absent"
	object.get(input.resource, ["labels", "protected"], "false") == "true"
	violation := {
		"message": sprintf("%s %q is labeled protected and cannot be destroyed", [input.resource.type, input.resource.name]),
		"severity": "error",
	}
}
`,
	}
}
