package directory

import (
	"time"

	appconfig "payment-assistant/internal/common/config"
)

// Registry is one account registry, queried in slice order.
type Registry struct {
	Name          string
	BaseURL       string
	AccountPrefix string
	AccountDigits int
}

type Config struct {
	Registries []Registry
	Timeout    time.Duration
	CacheTTL   time.Duration
}

func ConfigFromApp(regs []appconfig.RegistryConfig, cacheTTL int) *Config {
	out := &Config{
		Timeout:  10 * time.Second,
		CacheTTL: appconfig.GetDuration(cacheTTL),
	}
	for _, r := range regs {
		out.Registries = append(out.Registries, Registry{
			Name:          r.Name,
			BaseURL:       r.BaseURL,
			AccountPrefix: r.AccountPrefix,
			AccountDigits: r.AccountDigits,
		})
	}
	return out
}
