package rules

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// appendToDocument adds r to the end of an existing rule document,
// keeping the document's shape and comments. The new rule carries a
// head comment with the append time.
func appendToDocument(existing []byte, r Rule, at time.Time) ([]byte, error) {
	var ruleNode yaml.Node
	if err := ruleNode.Encode(r); err != nil {
		return nil, fmt.Errorf("encode rule: %w", err)
	}
	ruleNode.HeadComment = "appended " + at.UTC().Format(time.RFC3339)

	var root yaml.Node
	if len(bytes.TrimSpace(existing)) > 0 {
		if err := yaml.Unmarshal(existing, &root); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	}

	var top *yaml.Node
	if len(root.Content) > 0 {
		top = root.Content[0]
	}

	if top == nil || isNull(top) {
		fresh, err := encode(map[string][]*yaml.Node{"rules": {&ruleNode}})
		if err != nil {
			return nil, err
		}
		head := bytes.TrimRight(existing, " \t\r\n")
		if len(head) == 0 || !commentOnly(head) {
			return fresh, nil
		}
		return append(append(head, '\n'), fresh...), nil
	}

	switch top.Kind {
	case yaml.SequenceNode:
		top.Style = 0
		top.Content = append(top.Content, &ruleNode)
	case yaml.MappingNode:
		rn := mapValue(top, "rules")
		if rn == nil {
			single := *top
			*top = yaml.Node{
				Kind: yaml.MappingNode,
				Tag:  "!!map",
				Content: []*yaml.Node{
					{Kind: yaml.ScalarNode, Tag: "!!str", Value: "rules"},
					{Kind: yaml.SequenceNode, Tag: "!!seq", Content: []*yaml.Node{&single, &ruleNode}},
				},
			}
			break
		}
		if isNull(rn) {
			*rn = yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Line: rn.Line}
		}
		if rn.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("line %d: rules must be a list", rn.Line)
		}
		rn.Style = 0
		rn.Content = append(rn.Content, &ruleNode)
	default:
		return nil, fmt.Errorf("top level must be a mapping or a list")
	}
	return encode(&root)
}

func commentOnly(b []byte) bool {
	for _, line := range bytes.Split(b, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 && line[0] != '#' {
			return false
		}
	}
	return true
}

// writeFileAtomic replaces path with data via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
