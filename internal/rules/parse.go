package rules

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseError reports a rule document that cannot be loaded.
// Index is the rule's position in the document, or -1 for document-level problems.
type ParseError struct {
	Source string
	Index  int
	RuleID string
	Err    error
}

func (e *ParseError) Error() string {
	prefix := "rules"
	if e.Source != "" {
		prefix = e.Source
	}
	switch {
	case e.Index < 0:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	case e.RuleID != "":
		return fmt.Sprintf("%s: rule %d (%s): %v", prefix, e.Index, e.RuleID, e.Err)
	default:
		return fmt.Sprintf("%s: rule %d: %v", prefix, e.Index, e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// RequiredFields lists the keys every authored rule is expected to carry.
var RequiredFields = []string{
	"id", "name", "description", "match", "conditions", "severity", "risk_points", "remediation",
}

type document struct {
	items   []*yaml.Node
	weights map[string]int
}

// decodeDocument accepts {rules: [...]}, a bare list of rules, or a single
// rule mapping. An empty or comment-only document holds no rules.
func decodeDocument(text []byte) (*document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(text, &root); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	doc := &document{}
	if len(root.Content) == 0 {
		return doc, nil
	}

	top := root.Content[0]
	switch top.Kind {
	case yaml.SequenceNode:
		doc.items = top.Content
	case yaml.MappingNode:
		rulesNode := mapValue(top, "rules")
		if rulesNode == nil {
			doc.items = []*yaml.Node{top}
			break
		}
		switch {
		case isNull(rulesNode):
		case rulesNode.Kind == yaml.SequenceNode:
			doc.items = rulesNode.Content
		default:
			return nil, fmt.Errorf("line %d: rules must be a list", rulesNode.Line)
		}
		if meta := mapValue(top, "meta"); meta != nil {
			if w := mapValue(meta, "score_weights"); w != nil {
				if err := w.Decode(&doc.weights); err != nil {
					return nil, fmt.Errorf("meta.score_weights: %w", err)
				}
			}
		}
	case yaml.ScalarNode:
		if isNull(top) {
			return doc, nil
		}
		return nil, fmt.Errorf("top level must be a mapping or a list, got scalar %q", top.Value)
	default:
		return nil, fmt.Errorf("top level must be a mapping or a list")
	}

	for i, it := range doc.items {
		if it.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("rule %d (line %d): must be a mapping", i, it.Line)
		}
	}
	return doc, nil
}

// decodeRule decodes one rule node and applies meta.score_weights to
// rules that leave risk_points unset.
func (d *document) decodeRule(node *yaml.Node) (Rule, error) {
	var r Rule
	if err := node.Decode(&r); err != nil {
		return Rule{}, err
	}
	if r.RiskPoints == nil {
		if w, ok := d.weights[r.ID]; ok {
			r.RiskPoints = &w
		}
	}
	return r, nil
}

// Parse loads a complete rule document. Every rule must carry a unique id.
func Parse(text []byte, source string) (*RuleSet, error) {
	doc, err := decodeDocument(text)
	if err != nil {
		return nil, &ParseError{Source: source, Index: -1, Err: err}
	}

	out := make([]Rule, 0, len(doc.items))
	for i, node := range doc.items {
		r, err := doc.decodeRule(node)
		if err != nil {
			return nil, &ParseError{Source: source, Index: i, Err: err}
		}
		if r.ID == "" {
			return nil, &ParseError{Source: source, Index: i, Err: errors.New("id is required")}
		}
		c, err := Compile(r)
		if err != nil {
			return nil, &ParseError{Source: source, Index: i, RuleID: r.ID, Err: err}
		}
		out = append(out, c)
	}
	return newRuleSet(out, source, hashBytes(text))
}

// LoadFile parses the rule document at path.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	return Parse(data, path)
}

// ParseRule decodes a single authored rule. The id may be empty; the
// caller decides how to assign one. Warnings are returned alongside the rule.
func ParseRule(text []byte) (Rule, []Diagnostic, error) {
	rep := Validate(text)
	if errs := rep.Errors(); len(errs) > 0 {
		d := errs[0]
		return Rule{}, rep.Diagnostics, &ParseError{Index: d.Index, RuleID: d.RuleID, Err: errors.New(d.Message)}
	}
	if len(rep.Rules) != 1 {
		return Rule{}, rep.Diagnostics, &ParseError{Index: -1, Err: fmt.Errorf("expected exactly one rule, got %d", len(rep.Rules))}
	}
	return rep.Rules[0], rep.Warnings(), nil
}

// Marshal renders rules as a {rules: [...]} document.
func Marshal(rules []Rule) ([]byte, error) {
	return encode(map[string][]Rule{"rules": rules})
}

// MarshalRule renders one rule as a bare mapping.
func MarshalRule(r Rule) ([]byte, error) {
	return encode(r)
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func hashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(h[:])
}

func mapValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && (n.Tag == "!!null" || n.Value == "")
}
