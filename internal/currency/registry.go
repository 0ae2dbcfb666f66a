package currency

import (
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/noah-isme/backend-billing/internal/common"
)

// Formatter renders an amount in minor units as a display string.
type Formatter func(cents int64, code, symbol string, locale language.Tag) string

// Config seeds a Registry at boot.
type Config struct {
	Code      string
	Symbol    string // optional, guessed from Code when empty
	Locale    string
	Formatter Formatter // optional, replaces the locale-aware default
}

// Registry holds the process-wide currency settings: active currency code,
// display symbol, locale and an optional custom formatter. It is constructed
// once at startup and passed to the components that need it; the setters
// exist for test harnesses and controlled runtime switching, not for ambient
// mutation.
type Registry struct {
	mu        sync.RWMutex
	code      string
	symbol    string
	locale    language.Tag
	formatter Formatter
}

// New builds a Registry from the provided configuration. When no symbol is
// supplied the code must be one of the known mappings.
func New(cfg Config) (*Registry, error) {
	r := &Registry{locale: language.English}
	if err := r.UseCurrency(cfg.Code, cfg.Symbol); err != nil {
		return nil, err
	}
	if cfg.Locale != "" {
		if err := r.UseLocale(cfg.Locale); err != nil {
			return nil, err
		}
	}
	if cfg.Formatter != nil {
		r.FormatUsing(cfg.Formatter)
	}
	return r, nil
}

// UseCurrency switches the active currency. An empty symbol is guessed from
// the code and fails for codes outside the known mapping.
func (r *Registry) UseCurrency(code, symbol string) error {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return common.ConfigError("currency code is required", nil)
	}
	if strings.TrimSpace(symbol) == "" {
		guessed, err := GuessSymbol(code)
		if err != nil {
			return err
		}
		symbol = guessed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code = code
	r.symbol = symbol
	return nil
}

// UseSymbol overrides the display symbol for the active currency.
func (r *Registry) UseSymbol(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbol = symbol
}

// UseLocale switches the locale used by the default formatter.
func (r *Registry) UseLocale(locale string) error {
	tag, err := language.Parse(locale)
	if err != nil {
		return common.ConfigError("unparseable locale "+locale, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locale = tag
	return nil
}

// FormatUsing registers a custom formatter that replaces the locale-aware
// default for all subsequent FormatAmount calls.
func (r *Registry) FormatUsing(f Formatter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formatter = f
}

// Code returns the active currency code.
func (r *Registry) Code() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.code
}

// Symbol returns the active currency symbol.
func (r *Registry) Symbol() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.symbol
}

// Locale returns the active locale tag.
func (r *Registry) Locale() language.Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locale
}

// Uses reports whether the registry is configured for the given currency code.
func (r *Registry) Uses(code string) bool {
	return r.Code() == strings.ToLower(strings.TrimSpace(code))
}

// LocaleFor resolves the locale for an owner-specific override, falling back
// to the registry locale when the override is empty or unparseable.
func (r *Registry) LocaleFor(override string) language.Tag {
	if strings.TrimSpace(override) != "" {
		if tag, err := language.Parse(override); err == nil {
			return tag
		}
	}
	return r.Locale()
}

// FormatAmount renders an amount in minor units of the active currency,
// delegating to the custom formatter when one is registered.
func (r *Registry) FormatAmount(cents int64) string {
	return r.FormatAmountIn(cents, "")
}

// FormatAmountIn renders an amount using an owner locale override.
func (r *Registry) FormatAmountIn(cents int64, localeOverride string) string {
	r.mu.RLock()
	code, symbol, formatter := r.code, r.symbol, r.formatter
	r.mu.RUnlock()
	tag := r.LocaleFor(localeOverride)
	if formatter != nil {
		return formatter(cents, code, symbol, tag)
	}
	return defaultFormat(cents, symbol, tag)
}

func defaultFormat(cents int64, symbol string, tag language.Tag) string {
	printer := message.NewPrinter(tag)
	major := float64(cents) / 100
	return printer.Sprintf("%s%v", symbol, number.Decimal(major,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// GuessSymbol maps a small fixed set of currency codes to display symbols.
// Codes outside the mapping require the caller to supply a symbol explicitly.
func GuessSymbol(code string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "usd", "aud", "cad":
		return "$", nil
	case "eur":
		return "€", nil
	case "gbp":
		return "£", nil
	default:
		return "", common.ConfigError("unsupported currency "+code+", provide a symbol explicitly", nil)
	}
}
