package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Violation is a single schema violation found in the configuration.
type Violation struct {
	Path    string
	Line    int
	Message string
}

// String renders the violation, with its line when it is known.
func (v Violation) String() string {
	if v.Line == 0 {
		return fmt.Sprintf("%s: %s", v.Path, v.Message)
	}
	return fmt.Sprintf("%s: %s (line %d)", v.Path, v.Message, v.Line)
}

// ValidationError lists every schema violation of a configuration.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	lines := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		lines = append(lines, v.String())
	}
	return "invalid configuration:\n" + strings.Join(lines, "\n")
}

type fieldRule struct {
	tag      string
	required bool
	check    func(*yaml.Node) string
}

var accountSchema = []struct {
	name string
	rule fieldRule
}{
	{"user", fieldRule{tag: "!!str", required: true}},
	{"password", fieldRule{tag: "!!str", required: true}},
	{"host", fieldRule{tag: "!!str", required: true}},
	{"port", fieldRule{tag: "!!int", check: portRange}},
	{"tls", fieldRule{tag: "!!bool"}},
	{"mailbox", fieldRule{tag: "!!str"}},
}

var tagNames = map[string]string{
	"!!str":   "string",
	"!!int":   "integer",
	"!!bool":  "boolean",
	"!!null":  "null",
	"!!float": "number",
	"!!map":   "object",
	"!!seq":   "array",
}

func validate(root *yaml.Node) error {
	var violations []Violation

	if root.Kind != yaml.SequenceNode {
		violations = append(violations, Violation{
			Path:    "$",
			Line:    root.Line,
			Message: "expected array of accounts, got " + describe(root),
		})
		return &ValidationError{Violations: violations}
	}

	for i, item := range root.Content {
		path := fmt.Sprintf("[%d]", i)
		if item.Kind != yaml.MappingNode {
			violations = append(violations, Violation{
				Path:    path,
				Line:    item.Line,
				Message: "expected object, got " + describe(item),
			})
			continue
		}
		violations = append(violations, validateAccount(path, item)...)
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func validateAccount(path string, node *yaml.Node) []Violation {
	fields := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		fields[node.Content[i].Value] = node.Content[i+1]
	}

	var violations []Violation
	for _, f := range accountSchema {
		fieldPath := path + "." + f.name

		value, ok := fields[f.name]
		if !ok {
			if f.rule.required {
				violations = append(violations, Violation{
					Path:    fieldPath,
					Line:    node.Line,
					Message: "required property is missing",
				})
			}
			continue
		}

		if value.Kind != yaml.ScalarNode || value.ShortTag() != f.rule.tag {
			violations = append(violations, Violation{
				Path:    fieldPath,
				Line:    value.Line,
				Message: fmt.Sprintf("expected %s, got %s", tagNames[f.rule.tag], describe(value)),
			})
			continue
		}

		if f.rule.check != nil {
			if msg := f.rule.check(value); msg != "" {
				violations = append(violations, Violation{
					Path:    fieldPath,
					Line:    value.Line,
					Message: msg,
				})
			}
		}
	}

	return violations
}

func portRange(n *yaml.Node) string {
	port, err := strconv.Atoi(n.Value)
	if err != nil || port < 1 || port > 65535 {
		return "must be between 1 and 65535"
	}
	return ""
}

func describe(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "object"
	case yaml.SequenceNode:
		return "array"
	case yaml.AliasNode:
		return "alias"
	}

	if name, ok := tagNames[n.ShortTag()]; ok {
		return name
	}
	return n.ShortTag()
}
