package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const redacted = "********"

// GetPath retrieves a value using a dot-notation path such as
// "agent.timeout". Bearer tokens are redacted.
func (c *Config) GetPath(path string) (any, error) {
	safe := *c
	safe.API.Auth.Tokens = append(safe.API.Auth.Tokens[:0:0], c.API.Auth.Tokens...)
	for i := range safe.API.Auth.Tokens {
		safe.API.Auth.Tokens[i].Token = redacted
	}

	data, err := yaml.Marshal(&safe)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return getValue(m, path)
}

func getValue(m map[string]any, path string) (any, error) {
	var current any = m
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		node, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}
		val, exists := node[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}
	return current, nil
}

// SetPath writes value at path into the source file. The edited file must
// still load; otherwise the original bytes are restored.
func (c *Config) SetPath(path, value string) error {
	if c.SourceFile == "" {
		return fmt.Errorf("no configuration file to modify")
	}
	if strings.Trim(path, ".") == "" {
		return fmt.Errorf("path is empty")
	}

	original, err := os.ReadFile(c.SourceFile)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(original, &root); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if root.Kind == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return fmt.Errorf("config file is not a YAML document")
	}

	target, err := findNode(root.Content[0], path, true)
	if err != nil {
		return fmt.Errorf("failed to navigate/create path %q: %w", path, err)
	}
	target.Kind = yaml.ScalarNode
	target.Content = nil
	target.Value = value
	target.Tag = guessTag(value)

	candidate, err := yaml.Marshal(&root)
	if err != nil {
		return err
	}
	return c.persistWithValidation(original, candidate)
}

func findNode(node *yaml.Node, path string, create bool) (*yaml.Node, error) {
	current := node
	for _, part := range strings.Split(strings.Trim(path, "."), ".") {
		if current.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%q is not a mapping", part)
		}

		found := false
		for i := 0; i+1 < len(current.Content); i += 2 {
			if current.Content[i].Value == part {
				current = current.Content[i+1]
				found = true
				break
			}
		}
		if found {
			continue
		}
		if !create {
			return nil, fmt.Errorf("key %q not found", part)
		}
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part}
		val := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		current.Content = append(current.Content, key, val)
		current = val
	}
	return current, nil
}

func guessTag(v string) string {
	if v == "true" || v == "false" {
		return "!!bool"
	}
	isDigit := v != "" && v != "-"
	for i, r := range v {
		if i == 0 && r == '-' {
			continue
		}
		if r < '0' || r > '9' {
			isDigit = false
			break
		}
	}
	if isDigit {
		return "!!int"
	}
	return "!!str"
}

func (c *Config) persistWithValidation(original, candidate []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(c.SourceFile); err == nil {
		mode = info.Mode().Perm()
	}

	if err := os.WriteFile(c.SourceFile, candidate, mode); err != nil {
		return fmt.Errorf("failed to persist config change: %w", err)
	}
	if _, err := Load(c.SourceFile); err != nil {
		if restoreErr := os.WriteFile(c.SourceFile, original, mode); restoreErr != nil {
			return fmt.Errorf("validation failed (%v) and rollback failed (%v)", err, restoreErr)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
