// Package suspicious holds the keyword weights and TLD suffixes used to score
// certificate domains. A Config is built once at startup and never mutated.
package suspicious

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// StrongWeight is the minimum weight for a keyword to take part in
// one-character typo detection.
const StrongWeight = 70

//go:embed suspicious.yaml
var defaultYAML []byte

// Keyword is a brand or security term with its score weight.
type Keyword struct {
	Word   string
	Weight int
}

// Config is the immutable scoring configuration.
type Config struct {
	keywords []Keyword
	tlds     []string
}

// New builds a Config from explicit keywords and TLD suffixes.
// Later duplicates of a keyword replace the earlier weight in place.
func New(keywords []Keyword, tlds []string) *Config {
	c := &Config{}
	c.mergeKeywords(keywords)
	c.mergeTLDs(tlds)
	return c
}

// Default returns the built-in configuration.
func Default() (*Config, error) {
	return Parse(defaultYAML)
}

// Parse decodes a suspicious YAML document. Keyword order is preserved.
// TLDs may be given as a sequence or as a mapping with empty values.
func Parse(data []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("suspicious: decode: %w", err)
	}
	c := &Config{}
	if len(doc.Content) == 0 {
		return c, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("suspicious: top level must be a mapping")
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, root.Content[i+1]
		switch key {
		case "keywords":
			keywords, err := decodeKeywords(value)
			if err != nil {
				return nil, err
			}
			c.mergeKeywords(keywords)
		case "tlds":
			tlds, err := decodeTLDs(value)
			if err != nil {
				return nil, err
			}
			c.mergeTLDs(tlds)
		}
	}
	return c, nil
}

// LoadFile reads an external suspicious file. The result is merged into base,
// or replaces it when override is set. A nil base means the built-in defaults.
func LoadFile(path string, base *Config, override bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("suspicious: read %s: %w", path, err)
	}
	external, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if override {
		return external, nil
	}
	if base == nil {
		if base, err = Default(); err != nil {
			return nil, err
		}
	}
	return base.Merge(external), nil
}

// Merge returns a new Config with other's keywords and TLDs added to c.
func (c *Config) Merge(other *Config) *Config {
	out := &Config{}
	out.mergeKeywords(c.keywords)
	out.mergeTLDs(c.tlds)
	if other != nil {
		out.mergeKeywords(other.keywords)
		out.mergeTLDs(other.tlds)
	}
	return out
}

// Keywords returns a copy of all keywords in configuration order.
func (c *Config) Keywords() []Keyword {
	return append([]Keyword(nil), c.keywords...)
}

// StrongKeywords returns keywords with weight of at least StrongWeight.
func (c *Config) StrongKeywords() []Keyword {
	var out []Keyword
	for _, k := range c.keywords {
		if k.Weight >= StrongWeight {
			out = append(out, k)
		}
	}
	return out
}

// TLDs returns a copy of the suspicious suffixes in configuration order.
func (c *Config) TLDs() []string {
	return append([]string(nil), c.tlds...)
}

func (c *Config) mergeKeywords(keywords []Keyword) {
	for _, k := range keywords {
		word := strings.ToLower(strings.TrimSpace(k.Word))
		if word == "" {
			continue
		}
		replaced := false
		for i := range c.keywords {
			if c.keywords[i].Word == word {
				c.keywords[i].Weight = k.Weight
				replaced = true
				break
			}
		}
		if !replaced {
			c.keywords = append(c.keywords, Keyword{Word: word, Weight: k.Weight})
		}
	}
}

func (c *Config) mergeTLDs(tlds []string) {
	for _, t := range tlds {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || containsString(c.tlds, t) {
			continue
		}
		c.tlds = append(c.tlds, t)
	}
}

func decodeKeywords(node *yaml.Node) ([]Keyword, error) {
	if isNull(node) {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("suspicious: keywords must be a mapping (line %d)", node.Line)
	}
	out := make([]Keyword, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		weight, err := strconv.Atoi(strings.TrimSpace(v.Value))
		if err != nil {
			return nil, fmt.Errorf("suspicious: keyword %q weight %q (line %d): %w", k.Value, v.Value, v.Line, err)
		}
		if weight < 0 {
			return nil, fmt.Errorf("suspicious: keyword %q has negative weight %d", k.Value, weight)
		}
		out = append(out, Keyword{Word: k.Value, Weight: weight})
	}
	return out, nil
}

func decodeTLDs(node *yaml.Node) ([]string, error) {
	if isNull(node) {
		return nil, nil
	}
	var out []string
	switch node.Kind {
	case yaml.SequenceNode:
		for _, item := range node.Content {
			out = append(out, item.Value)
		}
	case yaml.MappingNode:
		for i := 0; i < len(node.Content); i += 2 {
			out = append(out, node.Content[i].Value)
		}
	default:
		return nil, fmt.Errorf("suspicious: tlds must be a sequence or mapping (line %d)", node.Line)
	}
	return out, nil
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
