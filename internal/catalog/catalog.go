// Package catalog talks to the dealership inventory and client-record service.
//
// The service exposes GET /api/cars, POST /api/clients and
// PUT /api/clients/{id}. A file-backed source replaces the inventory when no
// service is configured.
package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/zailonsoft/carbot/internal/models"
	"github.com/zailonsoft/carbot/internal/textnorm"
)

// ErrNotFound is returned when the service does not know the requested record.
var ErrNotFound = errors.New("catalog: not found")

// Source lists the vehicles in stock.
type Source interface {
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
}

// ImageFetcher downloads a vehicle image by the reference stored in Vehicle.Images.
type ImageFetcher interface {
	FetchImage(ctx context.Context, ref string) (models.Media, error)
}

// Clients persists client records.
type Clients interface {
	// CreateClient stores a new record and returns the id assigned by the service.
	CreateClient(ctx context.Context, rec models.ClientRecord) (string, error)
	// UpdateClient replaces the fields of an existing record. It returns
	// ErrNotFound when the id is unknown.
	UpdateClient(ctx context.Context, id string, rec models.ClientRecord) error
}

var stopWords = map[string]bool{
	"quero": true, "queria": true, "gostaria": true, "comprar": true, "financiar": true,
	"trocar": true, "carro": true, "carros": true, "esse": true, "este": true, "essa": true,
	"pelo": true, "pela": true, "para": true, "por": true, "com": true, "uma": true,
	"ver": true, "sim": true, "nao": true, "detalhes": true, "fotos": true, "foto": true,
	"vista": true, "modelo": true, "ano": true, "mais": true, "sobre": true,
}

// Match returns the first vehicle whose normalized name contains one of the
// significant tokens of normalized. Tokens shorter than three characters and
// common filler words are ignored.
func Match(vehicles []models.Vehicle, normalized string) (*models.Vehicle, bool) {
	var tokens []string
	for _, tok := range textnorm.Tokens(normalized) {
		if len([]rune(tok)) < 3 || stopWords[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}
	if len(tokens) == 0 {
		return nil, false
	}
	for i := range vehicles {
		name := textnorm.Normalize(vehicles[i].Name)
		for _, tok := range tokens {
			if strings.Contains(name, tok) {
				v := vehicles[i]
				return &v, true
			}
		}
	}
	return nil, false
}

// NopClients discards client records. It is used when no client service is configured.
type NopClients struct{}

func (NopClients) CreateClient(context.Context, models.ClientRecord) (string, error) { return "", nil }

func (NopClients) UpdateClient(context.Context, string, models.ClientRecord) error { return nil }
