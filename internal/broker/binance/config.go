package binance

import "time"

type Config struct {
	APIKey    string `toml:"api_key" json:"api_key"`
	APISecret string `toml:"api_secret" json:"-"`

	// RESTBaseURL overrides the SDK default, mainly for mirrors.
	RESTBaseURL string        `toml:"rest_base_url" json:"rest_base_url"`
	HTTPTimeout time.Duration `toml:"http_timeout" json:"http_timeout"`
	UseTestnet  bool          `toml:"use_testnet" json:"use_testnet"`

	ProxyEnabled bool   `toml:"proxy_enabled" json:"proxy_enabled"`
	RESTProxyURL string `toml:"rest_proxy_url" json:"rest_proxy_url"`

	// CommissionPercent estimates fill commission on order polls; the
	// exchange only itemizes commission on the create ack.
	CommissionPercent float64 `toml:"commission_percent" json:"commission_percent"`
}

func (c Config) withDefaults() Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.CommissionPercent <= 0 {
		c.CommissionPercent = 0.001
	}
	return c
}
