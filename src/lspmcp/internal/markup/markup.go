// Package markup turns documentation markup returned by the analyzer into display-ready text.
package markup

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"go.uber.org/config"
	"go.uber.org/fx"
)

const (
	_configKey = "presentation"

	// StyleRaw returns markdown untouched.
	StyleRaw = "raw"
)

// Module provides the Presenter.
var Module = fx.Provide(New)

// Kind is the markup flavour of a piece of documentation.
type Kind string

const (
	// Markdown content.
	Markdown Kind = "markdown"
	// PlainText content.
	PlainText Kind = "plaintext"
)

// Presenter renders documentation markup.
type Presenter interface {
	Present(kind Kind, value string) (string, error)
}

// Config selects the rendering style.
type Config struct {
	Style    string `yaml:"style"`
	WordWrap int    `yaml:"wordWrap"`
}

type presenter struct {
	style    string
	wordWrap int

	// glamour renderers are not safe for concurrent use.
	mu       sync.Mutex
	renderer *glamour.TermRenderer
}

// New creates a Presenter from the "presentation" configuration.
func New(cfg config.Provider) (Presenter, error) {
	c := Config{Style: styles.NoTTYStyle}
	if err := cfg.Get(_configKey).Populate(&c); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKey, err)
	}
	return NewWithConfig(c)
}

// NewWithConfig creates a Presenter without reading configuration.
func NewWithConfig(c Config) (Presenter, error) {
	p := &presenter{style: c.Style, wordWrap: c.WordWrap}
	if p.style == "" {
		p.style = styles.NoTTYStyle
	}
	if p.style == StyleRaw {
		return p, nil
	}

	opts := []glamour.TermRendererOption{glamour.WithStandardStyle(p.style)}
	if p.wordWrap > 0 {
		opts = append(opts, glamour.WithWordWrap(p.wordWrap))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating %q renderer: %w", p.style, err)
	}
	p.renderer = r
	return p, nil
}

// Present returns plaintext unchanged and renders markdown with the configured style.
func (p *presenter) Present(kind Kind, value string) (string, error) {
	if kind != Markdown || p.renderer == nil {
		return strings.TrimSpace(value), nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out, err := p.renderer.Render(value)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
