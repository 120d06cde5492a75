package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/convtree/treegen"
)

// seedFile 支持两种布局：顶层列表，或带 seeds 键的对象
type seedFile struct {
	Seeds []treegen.Seed `yaml:"seeds"`
}

// loadSeeds 读取 YAML 或 JSON 种子文件
func loadSeeds(path string) ([]treegen.Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seeds file: %w", err)
	}
	return parseSeeds(data)
}

func parseSeeds(data []byte) ([]treegen.Seed, error) {
	var seeds []treegen.Seed
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		var wrapped seedFile
		if err2 := yaml.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("parse seeds file: %w", err)
		}
		seeds = wrapped.Seeds
	}
	if len(seeds) == 0 {
		return nil, errors.New("seeds file lists no seeds")
	}

	ids := make(map[string]int, len(seeds))
	for i, s := range seeds {
		if s.Intent == "" || s.Domain == "" {
			return nil, fmt.Errorf("seed %d: intent and domain are required", i+1)
		}
		if s.MaxTurns < 0 {
			return nil, fmt.Errorf("seed %d: max_turns must not be negative", i+1)
		}
		if s.DocID == "" {
			continue
		}
		if prev, ok := ids[s.DocID]; ok {
			return nil, fmt.Errorf("seed %d: doc_id %q already used by seed %d", i+1, s.DocID, prev)
		}
		ids[s.DocID] = i + 1
	}
	return seeds, nil
}
