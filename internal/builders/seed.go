package builders

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/syed-c/standzon-sub008/internal/geo"
	"github.com/syed-c/standzon-sub008/platform/phone"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Builders []Builder `yaml:"builders"`
}

// LoadSeed decodes a YAML builder directory and canonicalizes locations and
// phone numbers. Entries without an id are rejected.
func LoadSeed(r io.Reader, tax *geo.Taxonomy) ([]Builder, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode builder seed: %w", err)
	}

	seen := make(map[string]bool, len(file.Builders))
	out := make([]Builder, 0, len(file.Builders))
	for i, b := range file.Builders {
		b.ID = strings.TrimSpace(b.ID)
		if b.ID == "" {
			return nil, fmt.Errorf("builder %d: id is required", i)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("builder %s: duplicate id", b.ID)
		}
		seen[b.ID] = true

		for j, loc := range b.Locations {
			b.Locations[j] = tax.Resolve(loc.City, loc.Country)
		}
		if b.Phone != "" {
			region := ""
			if len(b.Locations) > 0 {
				region = b.Locations[0].CountryCode
			}
			normalized, err := phone.ParseE164(b.Phone, region)
			if err != nil {
				return nil, fmt.Errorf("builder %s: phone: %w", b.ID, err)
			}
			b.Phone = normalized
		}
		out = append(out, b)
	}
	return out, nil
}

// LoadSeedFile reads LoadSeed input from path.
func LoadSeedFile(path string, tax *geo.Taxonomy) ([]Builder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadSeed(f, tax)
}
