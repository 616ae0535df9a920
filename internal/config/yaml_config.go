package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProjectConfigPath returns the config.yaml in use, or the path
// .illsync/config.yaml under cwd when none exists yet.
func ProjectConfigPath() (string, error) {
	if p := findConfigFile(); p != "" {
		return p, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Join(cwd, DirName, FileName), nil
}

// SetYamlConfig validates and writes key=value into the project's
// config.yaml. Dotted keys become nested mappings; other keys and comments
// are kept.
func SetYamlConfig(key, value string) error {
	if err := ValidateKey(key, value); err != nil {
		return err
	}
	path, err := ProjectConfigPath()
	if err != nil {
		return err
	}
	if err := writeYamlKey(path, key, value); err != nil {
		return err
	}

	// Reload viper config so changes take effect immediately
	if v != nil {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}
	return nil
}

func writeYamlKey(path, key, value string) error {
	data, err := os.ReadFile(path) // #nosec G304 - config file path from discovery
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config.yaml: %w", err)
	}

	var root yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("failed to parse config.yaml: %w", err)
		}
	}
	// Empty or comment-only files get a fresh document.
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		root = yaml.Node{
			Kind:        yaml.DocumentNode,
			HeadComment: root.HeadComment,
			Content:     []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	if root.Content[0].Kind != yaml.MappingNode {
		root.Content[0] = &yaml.Node{Kind: yaml.MappingNode}
	}

	mapping := root.Content[0]
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		mapping = childMapping(mapping, part)
	}
	setScalar(mapping, parts[len(parts)-1], value)

	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		return fmt.Errorf("failed to encode config.yaml: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config.yaml: %w", err)
	}
	return nil
}

// childMapping returns the mapping stored under name, creating or replacing
// it when absent or not a mapping.
func childMapping(parent *yaml.Node, name string) *yaml.Node {
	for i := 0; i+1 < len(parent.Content); i += 2 {
		if parent.Content[i].Value == name {
			child := parent.Content[i+1]
			if child.Kind != yaml.MappingNode {
				child = &yaml.Node{Kind: yaml.MappingNode}
				parent.Content[i+1] = child
			}
			return child
		}
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	parent.Content = append(parent.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: name},
		child,
	)
	return child
}

func setScalar(parent *yaml.Node, name, value string) {
	node := scalarNode(value)
	for i := 0; i+1 < len(parent.Content); i += 2 {
		if parent.Content[i].Value == name {
			node.LineComment = parent.Content[i+1].LineComment
			parent.Content[i+1] = node
			return
		}
	}
	parent.Content = append(parent.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: name},
		node,
	)
}

// scalarNode tags booleans and integers so they round-trip unquoted.
func scalarNode(value string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Value: value, Tag: "!!str"}
	lower := strings.ToLower(value)
	if lower == "true" || lower == "false" {
		n.Tag, n.Value = "!!bool", lower
	} else if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		n.Tag = "!!int"
	}
	return n
}
