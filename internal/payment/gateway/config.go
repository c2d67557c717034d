package gateway

import "time"

const defaultTimeout = 30 * time.Second

type PaymeConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MerchantID  string        `yaml:"merchant_id" envconfig:"MERCHANT_ID"`
	SecretKey   string        `yaml:"secret_key" envconfig:"SECRET_KEY"`
	CheckoutURL string        `yaml:"checkout_url" envconfig:"CHECKOUT_URL"`
	APIURL      string        `yaml:"api_url" envconfig:"API_URL"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ClickConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MerchantID  string        `yaml:"merchant_id" envconfig:"MERCHANT_ID"`
	ServiceID   string        `yaml:"service_id" envconfig:"SERVICE_ID"`
	SecretKey   string        `yaml:"secret_key" envconfig:"SECRET_KEY"`
	CheckoutURL string        `yaml:"checkout_url" envconfig:"CHECKOUT_URL"`
	APIURL      string        `yaml:"api_url" envconfig:"API_URL"`
	ReturnURL   string        `yaml:"return_url" envconfig:"RETURN_URL"`
	Timeout     time.Duration `yaml:"timeout"`
}

type StripeConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SecretKey     string        `yaml:"secret_key" envconfig:"SECRET_KEY"`
	WebhookSecret string        `yaml:"webhook_secret" envconfig:"WEBHOOK_SECRET"`
	APIURL        string        `yaml:"api_url" envconfig:"API_URL"`
	Currency      string        `yaml:"currency"`
	Timeout       time.Duration `yaml:"timeout"`
}

func (c *PaymeConfig) setDefaults() {
	if c.CheckoutURL == "" {
		c.CheckoutURL = "https://checkout.paycom.uz"
	}
	if c.APIURL == "" {
		c.APIURL = "https://checkout.paycom.uz/api"
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}

func (c *ClickConfig) setDefaults() {
	if c.CheckoutURL == "" {
		c.CheckoutURL = "https://my.click.uz/services/pay"
	}
	if c.APIURL == "" {
		c.APIURL = "https://api.click.uz"
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}

func (c *StripeConfig) setDefaults() {
	if c.APIURL == "" {
		c.APIURL = "https://api.stripe.com"
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}
