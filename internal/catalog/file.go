package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/zailonsoft/carbot/internal/models"
	"gopkg.in/yaml.v3"
)

// FileCatalog serves the inventory from a local YAML or JSON file. The file is
// re-read on every call so edits show up without a restart.
type FileCatalog struct {
	path string
}

var (
	_ Source       = (*FileCatalog)(nil)
	_ ImageFetcher = (*FileCatalog)(nil)
)

// NewFileCatalog creates a FileCatalog for path.
func NewFileCatalog(path string) *FileCatalog {
	return &FileCatalog{path: path}
}

type fileDoc struct {
	Vehicles []models.Vehicle `json:"vehicles" yaml:"vehicles"`
	Cars     []models.Vehicle `json:"cars" yaml:"cars"`
	Modelos  []legacyVehicle  `json:"modelos" yaml:"modelos"`
}

// legacyVehicle is the Portuguese-keyed layout of the old carros.json file.
type legacyVehicle struct {
	ID        models.FlexString `json:"id" yaml:"id"`
	Nome      string            `json:"nome" yaml:"nome"`
	Ano       models.FlexString `json:"ano" yaml:"ano"`
	Preco     models.FlexString `json:"preco" yaml:"preco"`
	Descricao string            `json:"descricao" yaml:"descricao"`
	Imagens   []string          `json:"imagens" yaml:"imagens"`
}

func (l legacyVehicle) vehicle() models.Vehicle {
	return models.Vehicle{ID: l.ID, Name: l.Nome, Year: l.Ano, Price: l.Preco, Description: l.Descricao, Images: l.Imagens}
}

func (d fileDoc) vehicles() []models.Vehicle {
	out := append([]models.Vehicle(nil), d.Vehicles...)
	out = append(out, d.Cars...)
	for _, l := range d.Modelos {
		out = append(out, l.vehicle())
	}
	return out
}

// ListVehicles implements Source.
func (f *FileCatalog) ListVehicles(_ context.Context) ([]models.Vehicle, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", f.path, err)
	}
	vehicles, err := parseVehicles(f.path, data)
	if err != nil {
		return nil, err
	}
	slog.Debug("FileCatalog loaded vehicles", "path", f.path, "count", len(vehicles))
	return vehicles, nil
}

func parseVehicles(path string, data []byte) ([]models.Vehicle, error) {
	trimmed := strings.TrimSpace(string(data))
	isJSON := strings.EqualFold(filepath.Ext(path), ".json")
	if isJSON && strings.HasPrefix(trimmed, "[") {
		var list []models.Vehicle
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
		}
		return list, nil
	}
	if isJSON {
		var doc fileDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
		}
		return doc.vehicles(), nil
	}
	if strings.HasPrefix(trimmed, "-") {
		var list []models.Vehicle
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
		}
		return list, nil
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	return doc.vehicles(), nil
}

// FetchImage implements ImageFetcher. Relative references resolve against
// the catalog file's directory.
func (f *FileCatalog) FetchImage(_ context.Context, ref string) (models.Media, error) {
	p := ref
	if !filepath.IsAbs(p) {
		p = filepath.Join(filepath.Dir(f.path), filepath.FromSlash(ref))
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return models.Media{}, ErrNotFound
	}
	if err != nil {
		return models.Media{}, fmt.Errorf("read image %s: %w", p, err)
	}
	return models.Media{Data: data, Mimetype: mimetype.Detect(data).String(), Filename: filepath.Base(p)}, nil
}
