package prefs

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("appearance preferences not found")
)

const (
	IconDefault  = "default"
	IconInverted = "inverted"
	IconMono     = "mono"
)

var accentColorPattern = regexp.MustCompile(`^#[0-9a-f]{6}$`)

// Appearance is the user-selected accent color and app icon.
type Appearance struct {
	AccentColor string
	Icon        string
}

type Store interface {
	Load(ctx context.Context) (Appearance, error)
	Save(ctx context.Context, appearance Appearance) error
}

type Config struct {
	DefaultAccentColor string
	DefaultIcon        string
}

type Service struct {
	store Store
	cfg   Config
}

func NewService(store Store, cfg Config) *Service {
	if cfg.DefaultAccentColor == "" {
		cfg.DefaultAccentColor = "#f2a03d"
	}
	if cfg.DefaultIcon == "" {
		cfg.DefaultIcon = IconDefault
	}
	return &Service{store: store, cfg: cfg}
}

// Get returns the stored appearance, falling back to the configured defaults
// when nothing has been saved yet.
func (s *Service) Get(ctx context.Context) (Appearance, error) {
	if s.store == nil {
		return Appearance{}, fmt.Errorf("prefs store is nil")
	}

	appearance, err := s.store.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return s.defaults(), nil
	}
	if err != nil {
		return Appearance{}, fmt.Errorf("load appearance: %w", err)
	}

	if appearance.AccentColor == "" {
		appearance.AccentColor = s.cfg.DefaultAccentColor
	}
	if appearance.Icon == "" {
		appearance.Icon = s.cfg.DefaultIcon
	}
	return appearance, nil
}

// SetAccentColor validates and applies a new accent color. The updated value
// is returned even when persisting it fails; the caller decides whether the
// error matters.
func (s *Service) SetAccentColor(ctx context.Context, color string) (Appearance, error) {
	color = strings.ToLower(strings.TrimSpace(color))
	if !accentColorPattern.MatchString(color) {
		return Appearance{}, fmt.Errorf("accent color %q: %w", color, ErrValidation)
	}

	current, err := s.Get(ctx)
	if err != nil {
		return Appearance{}, err
	}

	current.AccentColor = color
	if err := s.store.Save(ctx, current); err != nil {
		return current, fmt.Errorf("save appearance: %w", err)
	}
	return current, nil
}

// SetIcon validates and applies a new app icon choice.
func (s *Service) SetIcon(ctx context.Context, icon string) (Appearance, error) {
	icon = strings.ToLower(strings.TrimSpace(icon))
	switch icon {
	case IconDefault, IconInverted, IconMono:
	default:
		return Appearance{}, fmt.Errorf("icon %q: %w", icon, ErrValidation)
	}

	current, err := s.Get(ctx)
	if err != nil {
		return Appearance{}, err
	}

	current.Icon = icon
	if err := s.store.Save(ctx, current); err != nil {
		return current, fmt.Errorf("save appearance: %w", err)
	}
	return current, nil
}

func (s *Service) defaults() Appearance {
	return Appearance{
		AccentColor: s.cfg.DefaultAccentColor,
		Icon:        s.cfg.DefaultIcon,
	}
}
