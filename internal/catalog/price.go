package catalog

import (
	"strings"

	"github.com/zailonsoft/carbot/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PriceNotProvided is shown for vehicles without a usable price.
const PriceNotProvided = "Preço não informado"

// FormatPrice renders a catalog price as Brazilian reais, e.g. "R$ 45.900,00".
func FormatPrice(price models.FlexString) string {
	v, ok := price.Float()
	if !ok {
		if s := strings.TrimSpace(string(price)); s != "" {
			return s
		}
		return PriceNotProvided
	}
	p := message.NewPrinter(language.BrazilianPortuguese)
	return p.Sprintf("R$ %.2f", v)
}

// Describe renders one catalog line: name, year, price and description.
func Describe(v models.Vehicle) string {
	year := string(v.Year)
	if year == "" {
		year = "sem ano"
	}
	line := v.Name + " (" + year + ") - " + FormatPrice(v.Price)
	if d := strings.TrimSpace(v.Description); d != "" {
		d = strings.NewReplacer("\r\n", ", ", "\n", ", ").Replace(d)
		line += " - " + d
	}
	return line
}

// List renders up to limit vehicles as a bulleted list. limit <= 0 lists all.
func List(vehicles []models.Vehicle, limit int) string {
	if len(vehicles) == 0 {
		return "Nenhum carro no estoque no momento."
	}
	if limit <= 0 || limit > len(vehicles) {
		limit = len(vehicles)
	}
	lines := make([]string, 0, limit)
	for _, v := range vehicles[:limit] {
		lines = append(lines, "- "+Describe(v))
	}
	return strings.Join(lines, "\n")
}
