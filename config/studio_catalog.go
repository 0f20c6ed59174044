package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"studio_server/core/domain"
)

//go:embed assets.yaml
var defaultCatalogYAML []byte

type catalogFile struct {
	Assets []domain.AssetSpec `yaml:"assets"`
}

// LoadAssetCatalog reads the catalog at path, or the built-in one when path is empty.
func LoadAssetCatalog(path string) (*domain.AssetCatalog, error) {
	raw := defaultCatalogYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read asset catalog %s: %w", path, err)
		}
		raw = b
	}
	return ParseAssetCatalog(raw)
}

func ParseAssetCatalog(raw []byte) (*domain.AssetCatalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse asset catalog: %w", err)
	}
	return domain.NewAssetCatalog(f.Assets)
}
