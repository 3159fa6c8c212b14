package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CategorySpec describes one entry of the inventory category taxonomy as
// declared in config/categories.yaml. Subcategories nest one level deep.
type CategorySpec struct {
	Code          string         `yaml:"code"`
	Name          string         `yaml:"name"`
	Icon          string         `yaml:"icon"`
	SortOrder     int            `yaml:"sort_order"`
	Active        *bool          `yaml:"active"`
	Subcategories []CategorySpec `yaml:"subcategories"`
}

// IsActive defaults to true when the YAML omits the flag.
func (c CategorySpec) IsActive() bool {
	return c.Active == nil || *c.Active
}

type categoryFile struct {
	Categories []CategorySpec `yaml:"categories"`
}

// LoadCategories reads the category taxonomy from the given YAML file.
func LoadCategories(path string) ([]CategorySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}

	var file categoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse categories file: %w", err)
	}

	for _, cat := range file.Categories {
		if cat.Code == "" {
			return nil, fmt.Errorf("category without code in %s", path)
		}
		for _, sub := range cat.Subcategories {
			if sub.Code == "" {
				return nil, fmt.Errorf("subcategory without code under %s", cat.Code)
			}
		}
	}
	return file.Categories, nil
}
