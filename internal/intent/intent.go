// Package intent maps normalized customer text to a top-level intent using an
// ordered keyword table. The first rule with a hit wins, so declaration order
// is significant: finance is checked before buy because "quero comprar
// financiado" is a financing request.
package intent

import (
	"strings"

	"github.com/zailonsoft/carbot/internal/models"
	"github.com/zailonsoft/carbot/internal/textnorm"
)

// Rule pairs an intent with the keywords that select it.
type Rule struct {
	Intent   models.Intent
	Keywords []string
}

// DefaultRules returns the built-in keyword table in precedence order.
func DefaultRules() []Rule {
	return []Rule{
		{models.IntentFinance, []string{"financiar", "financiamento", "financiado", "financia", "parcelar", "parcelado", "simular", "simulacao"}},
		{models.IntentBuy, []string{"comprar", "compra", "adquirir", "a vista", "quero um carro"}},
		{models.IntentTradeIn, []string{"trocar", "troca", "permuta"}},
		{models.IntentConsign, []string{"consignar", "consignacao", "consignado", "consigna"}},
		{models.IntentSell, []string{"vender", "venda", "meu carro"}},
		{models.IntentVisit, []string{"visita", "visitar", "agendar", "agendamento", "marcar", "test drive", "ir ai", "passar ai"}},
		{models.IntentDetails, []string{"estoque", "catalogo", "ver carros", "quais carros", "olhada", "detalhes", "fotos", "modelos", "disponiveis", "opcoes"}},
		{models.IntentHuman, []string{"atendente", "humano", "pessoa", "ajuda", "suporte", "falar com"}},
		{models.IntentGreet, []string{"oi", "ola", "opa", "hey", "bom dia", "boa tarde", "boa noite", "e ai", "salve", "fala", "beleza", "tudo bem"}},
	}
}

// Classifier holds a normalized rule table.
type Classifier struct {
	rules []Rule
}

// New builds a Classifier. Keywords are normalized so callers may write them
// with accents.
func New(rules []Rule) *Classifier {
	c := &Classifier{rules: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		nr := Rule{Intent: r.Intent}
		for _, kw := range r.Keywords {
			if n := textnorm.Normalize(kw); n != "" {
				nr.Keywords = append(nr.Keywords, n)
			}
		}
		c.rules = append(c.rules, nr)
	}
	return c
}

// NewDefault returns a Classifier over DefaultRules.
func NewDefault() *Classifier {
	return New(DefaultRules())
}

// WithOverrides replaces the keywords of the named intents while keeping the
// default precedence. Unknown intents are appended in map order after the defaults.
func WithOverrides(rules []Rule, overrides map[models.Intent][]string) []Rule {
	out := make([]Rule, 0, len(rules))
	seen := make(map[models.Intent]bool, len(rules))
	for _, r := range rules {
		if kws, ok := overrides[r.Intent]; ok && len(kws) > 0 {
			r.Keywords = kws
		}
		seen[r.Intent] = true
		out = append(out, r)
	}
	for in, kws := range overrides {
		if !seen[in] && len(kws) > 0 {
			out = append(out, Rule{Intent: in, Keywords: kws})
		}
	}
	return out
}

// Classify returns the first matching intent for already normalized text, or
// models.IntentNone.
func (c *Classifier) Classify(normalized string) models.Intent {
	if normalized == "" {
		return models.IntentNone
	}
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if hasWordPrefix(normalized, kw) {
				return r.Intent
			}
		}
	}
	return models.IntentNone
}

// hasWordPrefix reports whether kw occurs in text starting at a word boundary,
// so "compra" hits "comprar" but "oi" does not hit "boi". Keywords of two
// characters or fewer must match a whole word: "oi" does not hit "oitenta".
func hasWordPrefix(text, kw string) bool {
	if len(kw) <= shortKeyword {
		return strings.Contains(" "+text+" ", " "+kw+" ")
	}
	return strings.Contains(" "+text, " "+kw)
}

const shortKeyword = 2

// Answer is a yes/no reply to a confirmation prompt.
type Answer int

const (
	Unknown Answer = iota
	Yes
	No
)

func (a Answer) String() string {
	switch a {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

var (
	noWords    = []string{"nao", "n", "negativo", "desisto", "nunca"}
	yesWords   = []string{"sim", "s", "claro", "confirmo", "confirmar", "confirma", "pode", "bora", "isso", "ok", "fechado", "positivo", "yes", "beleza"}
	skipWords  = []string{"pular", "pula", "sem foto", "nao tenho", "depois", "skip"}
	resetPhrases = []string{
		"menu", "cancelar", "cancela", "voltar", "inicio", "recomecar",
		"menu principal", "voltar ao menu", "voltar pro menu", "voltar para o menu",
		"voltar ao inicio", "quero cancelar", "pode cancelar",
	}
)

// ParseAnswer classifies a normalized confirmation reply. Negative words win
// over positive ones, so "sim, quer dizer, nao" is a no.
func ParseAnswer(normalized string) Answer {
	tokens := textnorm.Tokens(normalized)
	if containsToken(tokens, noWords) {
		return No
	}
	if containsToken(tokens, yesWords) {
		return Yes
	}
	return Unknown
}

// IsSkip reports whether the customer declined to send an optional photo.
func IsSkip(normalized string) bool {
	padded := " " + normalized + " "
	for _, w := range skipWords {
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
	}
	return false
}

// IsReset reports whether the whole message asks to go back to the main
// menu. Answers that merely contain a reset word, such as "voltar amanha" or
// a surname like "Inicio", are not resets.
func IsReset(normalized string) bool {
	msg := strings.Join(textnorm.Tokens(normalized), " ")
	for _, p := range resetPhrases {
		if msg == p {
			return true
		}
	}
	return false
}

func containsToken(tokens, words []string) bool {
	for _, t := range tokens {
		for _, w := range words {
			if t == w {
				return true
			}
		}
	}
	return false
}
