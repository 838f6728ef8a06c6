// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"maps"
	"net/url"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/securecookie"
	"github.com/joho/godotenv"
	"github.com/tacotsubo/authcode/oidc"
)

const defaultPort = 3000

// Config is the process configuration, read from the environment.
type Config struct {
	Issuer                string        `env:"OIDC_ISSUER" validate:"required,url"`
	ClientID              string        `env:"OIDC_CLIENT_ID" validate:"required"`
	ClientSecret          string        `env:"OIDC_CLIENT_SECRET"`
	RedirectURL           string        `env:"OIDC_REDIRECT_URL" validate:"omitempty,url"`
	PostLogoutRedirectURL string        `env:"OIDC_POST_LOGOUT_REDIRECT_URL" validate:"omitempty,url"`
	Scopes                []string      `env:"OIDC_SCOPES" envSeparator:" "`
	Audience              string        `env:"OIDC_AUDIENCE"`
	Resource              string        `env:"OIDC_RESOURCE"`
	AuthMethod            string        `env:"OIDC_AUTH_METHOD" envDefault:"client_secret_post" validate:"oneof=client_secret_post client_secret_basic client_secret_jwt private_key_jwt none"`
	ClientAssertionKey    string        `env:"OIDC_CLIENT_ASSERTION_KEY" validate:"required_if=AuthMethod private_key_jwt"`
	ClientAssertionKeyID  string        `env:"OIDC_CLIENT_ASSERTION_KEY_ID"`
	SigningAlgs           []string      `env:"OIDC_SIGNING_ALGS" envSeparator:" " envDefault:"RS256" validate:"min=1"`
	ProviderCA            string        `env:"OIDC_PROVIDER_CA"`
	Port                  int           `env:"PORT" envDefault:"3000" validate:"min=1,max=65535"`
	RequestTTL            time.Duration `env:"AUTH_REQUEST_TTL" envDefault:"2m" validate:"min=1s"`
	CookieHashKey         string        `env:"COOKIE_HASH_KEY" validate:"omitempty,base64"`
	CookieBlockKey        string        `env:"COOKIE_BLOCK_KEY" validate:"omitempty,base64"`
	CookieSecure          bool          `env:"COOKIE_SECURE"`
	LogLevel              string        `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error off"`
}

// loadConfig parses environ, with the variables of envFile underneath when
// one is given, and validates the result.
func loadConfig(envFile string, environ map[string]string) (*Config, error) {
	const op = "loadConfig"
	vars := map[string]string{}
	if envFile != "" {
		fileVars, err := godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read %s: %w", op, envFile, err)
		}
		maps.Copy(vars, fileVars)
	}
	maps.Copy(vars, environ)

	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if c.RedirectURL == "" {
		c.RedirectURL = "http://localhost:" + strconv.Itoa(c.Port) + "/callback"
	}
	if c.PostLogoutRedirectURL == "" {
		u, err := url.Parse(c.RedirectURL)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid redirect url: %w", op, err)
		}
		c.PostLogoutRedirectURL = (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()
	}
	if err := validator.New().Struct(c); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// surfaces the provider config rules, like a secret per auth method
	if _, err := c.providerConfig(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &c, nil
}

// providerConfig returns the oidc.Config for the configured provider.
func (c *Config) providerConfig() (*oidc.Config, error) {
	algs := make([]oidc.Alg, 0, len(c.SigningAlgs))
	for _, a := range c.SigningAlgs {
		algs = append(algs, oidc.Alg(a))
	}
	opts := []oidc.Option{
		oidc.WithScopes(c.Scopes...),
		oidc.WithAudience(c.Audience),
		oidc.WithResource(c.Resource),
		oidc.WithAuthMethod(oidc.AuthMethod(c.AuthMethod)),
		oidc.WithSupportedSigningAlgs(algs...),
	}
	if c.ProviderCA != "" {
		opts = append(opts, oidc.WithProviderCA(c.ProviderCA))
	}
	if c.ClientAssertionKey != "" {
		key, err := parseRSAKey(c.ClientAssertionKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, oidc.WithClientAssertionKey(key, c.ClientAssertionKeyID))
	}
	return oidc.NewConfig(c.Issuer, c.ClientID, oidc.ClientSecret(c.ClientSecret), c.RedirectURL, opts...)
}

// parseRSAKey reads a PKCS #1 or PKCS #8 PEM encoded RSA private key.
func parseRSAKey(s string) (*rsa.PrivateKey, error) {
	const op = "parseRSAKey"
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("%s: client assertion key is not PEM encoded: %w", op, oidc.ErrInvalidParameter)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse client assertion key: %w", op, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: client assertion key is not an RSA key: %w", op, oidc.ErrInvalidParameter)
	}
	return key, nil
}

// cookieKeys decodes the configured cookie keys. A key that isn't set is
// generated, so pending logins don't survive a restart.
func (c *Config) cookieKeys() (hashKey, blockKey []byte, err error) {
	const op = "Config.cookieKeys"
	decode := func(v string, n int) ([]byte, error) {
		if v == "" {
			return securecookie.GenerateRandomKey(n), nil
		}
		return base64.StdEncoding.DecodeString(v)
	}
	if hashKey, err = decode(c.CookieHashKey, 32); err != nil {
		return nil, nil, fmt.Errorf("%s: hash key: %w", op, err)
	}
	if blockKey, err = decode(c.CookieBlockKey, 32); err != nil {
		return nil, nil, fmt.Errorf("%s: block key: %w", op, err)
	}
	return hashKey, blockKey, nil
}
