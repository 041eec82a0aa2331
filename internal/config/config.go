// Package config loads the dealership profile: the bot's voice, staff
// contacts, timings and keyword tables. Defaults are built in; a YAML file
// overrides any subset of them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zailonsoft/carbot/internal/report"
)

const (
	DefaultBotName         = "Zailon"
	DefaultDealership      = "Zailon Veículos"
	DefaultWelcomeCooldown = 24 * time.Hour
	DefaultIdleTimeout     = 10 * time.Minute
	DefaultSweepInterval   = time.Minute
	DefaultCatalogLimit    = 20
	DefaultCallTimeout     = 5 * time.Second
)

// FinanceOptions tunes the financing funnel.
type FinanceOptions struct {
	RequireEmployment bool `yaml:"require_employment"`
}

// Profile is the dealership configuration consumed by the dialog engine.
type Profile struct {
	BotName            string              `yaml:"bot_name"`
	Dealership         string              `yaml:"dealership"`
	StaffContacts      []string            `yaml:"staff_contacts"`
	HumanContact       string              `yaml:"human_contact"`
	WelcomeCooldown    time.Duration       `yaml:"welcome_cooldown"`
	IdleTimeout        time.Duration       `yaml:"idle_timeout"`
	SweepInterval      time.Duration       `yaml:"sweep_interval"`
	TypingDelay        time.Duration       `yaml:"typing_delay"`
	CallTimeout        time.Duration       `yaml:"call_timeout"`
	ReportAbandoned    bool                `yaml:"report_abandoned"`
	Finance            FinanceOptions      `yaml:"finance"`
	Keywords           map[string][]string `yaml:"keywords"`
	Synonyms           map[string][]string `yaml:"synonyms"`
	ComplianceNotice   string              `yaml:"compliance_notice"`
	CatalogLimit       int                 `yaml:"catalog_limit"`
	PublicMediaBaseURL string              `yaml:"public_media_base_url"`
	Messages           Messages            `yaml:"messages"`
}

// DefaultSynonyms folds common greetings into "oi".
func DefaultSynonyms() map[string][]string {
	return map[string][]string{
		"oi": {"ola", "bom dia", "boa tarde", "boa noite", "e ai", "salve", "opa", "fala ai", "hey"},
	}
}

// Default returns the built-in profile.
func Default() *Profile {
	return &Profile{
		BotName:          DefaultBotName,
		Dealership:       DefaultDealership,
		HumanContact:     "Fale com nossa equipe pelo telefone da loja ou aguarde, um vendedor vai te chamar.",
		WelcomeCooldown:  DefaultWelcomeCooldown,
		IdleTimeout:      DefaultIdleTimeout,
		SweepInterval:    DefaultSweepInterval,
		CallTimeout:      DefaultCallTimeout,
		Finance:          FinanceOptions{RequireEmployment: true},
		Synonyms:         DefaultSynonyms(),
		ComplianceNotice: report.DefaultNotice,
		CatalogLimit:     DefaultCatalogLimit,
		Messages:         DefaultMessages(),
	}
}

// Load reads a YAML profile from path on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (*Profile, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	p.Messages.fillDefaults()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return p, nil
}

// Validate checks the timing and limit fields.
func (p *Profile) Validate() error {
	var errs []error
	if p.WelcomeCooldown < 0 {
		errs = append(errs, errors.New("welcome_cooldown must not be negative"))
	}
	if p.IdleTimeout <= 0 {
		errs = append(errs, errors.New("idle_timeout must be positive"))
	}
	if p.SweepInterval < time.Second {
		errs = append(errs, errors.New("sweep_interval must be at least 1s"))
	}
	if p.TypingDelay < 0 {
		errs = append(errs, errors.New("typing_delay must not be negative"))
	}
	if p.CallTimeout < 0 {
		errs = append(errs, errors.New("call_timeout must not be negative"))
	}
	if p.CatalogLimit < 0 {
		errs = append(errs, errors.New("catalog_limit must not be negative"))
	}
	for i, c := range p.StaffContacts {
		if strings.TrimSpace(c) == "" {
			errs = append(errs, fmt.Errorf("staff_contacts[%d] is empty", i))
		}
	}
	return errors.Join(errs...)
}

// SweepSchedule returns the cron descriptor for the idle reaper.
func (p *Profile) SweepSchedule() string {
	return "@every " + p.SweepInterval.String()
}

// Expand substitutes {name} placeholders in tmpl. vars alternates names and values.
func Expand(tmpl string, vars ...string) string {
	if len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars))
	for i := 0; i+1 < len(vars); i += 2 {
		pairs = append(pairs, "{"+vars[i]+"}", vars[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
