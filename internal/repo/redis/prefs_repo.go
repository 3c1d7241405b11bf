package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	prefssvc "github.com/ivankudzin/tipjar/internal/services/prefs"
)

const appearanceKey = "prefs:appearance"

type PrefsRepo struct {
	client *goredis.Client
}

func NewPrefsRepo(client *goredis.Client) *PrefsRepo {
	return &PrefsRepo{client: client}
}

func (r *PrefsRepo) Load(ctx context.Context) (prefssvc.Appearance, error) {
	if r.client == nil {
		return prefssvc.Appearance{}, fmt.Errorf("redis client is nil")
	}

	values, err := r.client.HGetAll(ctx, appearanceKey).Result()
	if err != nil {
		return prefssvc.Appearance{}, fmt.Errorf("load appearance: %w", err)
	}
	if len(values) == 0 {
		return prefssvc.Appearance{}, prefssvc.ErrNotFound
	}

	return prefssvc.Appearance{
		AccentColor: values["accent_color"],
		Icon:        values["icon"],
	}, nil
}

func (r *PrefsRepo) Save(ctx context.Context, appearance prefssvc.Appearance) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	fields := map[string]interface{}{
		"accent_color": appearance.AccentColor,
		"icon":         appearance.Icon,
	}
	if err := r.client.HSet(ctx, appearanceKey, fields).Err(); err != nil {
		return fmt.Errorf("save appearance: %w", err)
	}

	return nil
}
