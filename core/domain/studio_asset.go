package domain

import (
	"fmt"
	"strings"
)

// AssetSpec describes one mockup the studio renders
type AssetSpec struct {
	Key    string `json:"key" yaml:"key"`
	Label  string `json:"label" yaml:"label"`
	Prompt string `json:"prompt" yaml:"prompt"` // template handed to the analyzer as the expected shape
}

// AssetCatalog is the ordered, configured set of asset keys. Order drives generation order.
type AssetCatalog struct {
	assets []AssetSpec
	index  map[string]int
}

// NewAssetCatalog rejects empty catalogs, blank keys and duplicates.
func NewAssetCatalog(assets []AssetSpec) (*AssetCatalog, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("asset catalog is empty")
	}
	c := &AssetCatalog{
		assets: make([]AssetSpec, 0, len(assets)),
		index:  make(map[string]int, len(assets)),
	}
	for _, a := range assets {
		a.Key = strings.TrimSpace(a.Key)
		if a.Key == "" {
			return nil, fmt.Errorf("asset catalog: blank key")
		}
		if _, dup := c.index[a.Key]; dup {
			return nil, fmt.Errorf("asset catalog: duplicate key %q", a.Key)
		}
		c.index[a.Key] = len(c.assets)
		c.assets = append(c.assets, a)
	}
	return c, nil
}

func (c *AssetCatalog) Len() int { return len(c.assets) }

// Keys returns the keys in generation order.
func (c *AssetCatalog) Keys() []string {
	keys := make([]string, len(c.assets))
	for i, a := range c.assets {
		keys[i] = a.Key
	}
	return keys
}

func (c *AssetCatalog) Specs() []AssetSpec {
	return append([]AssetSpec(nil), c.assets...)
}

func (c *AssetCatalog) Has(key string) bool {
	_, ok := c.index[key]
	return ok
}

func (c *AssetCatalog) Get(key string) (AssetSpec, bool) {
	i, ok := c.index[key]
	if !ok {
		return AssetSpec{}, false
	}
	return c.assets[i], true
}

// GeneratedAsset is one rendered image returned by a generator
type GeneratedAsset struct {
	Data     []byte
	MIMEType string
}

// Extension maps the MIME type to a storage file extension.
func (a *GeneratedAsset) Extension() string {
	return ExtensionForMIME(a.MIMEType)
}

func ExtensionForMIME(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}
