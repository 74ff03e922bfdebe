package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Entitlement.FreeQuota)
	assert.Len(t, cfg.Catalog.Packages, 2)
}

func TestValidateRejectsBadPackage(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Catalog.Packages = append(cfg.Catalog.Packages, PackageConfig{
		ID:           "weekly",
		DurationDays: 0,
		Price:        "abc",
		Currency:     "RUB",
	})
	assert.Error(t, cfg.Validate())
}

func TestShippedConfigKeepsSafeDefaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	// every delivery must reach storage before the response
	assert.False(t, cfg.Audit.Async)
	// forwarding headers are ignored unless a proxy is listed
	assert.Empty(t, cfg.Server.TrustedProxies)
}

func TestValidateRejectsBadCIDR(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Webhook.AllowedCIDRs = []string{"185.71.76.0/27", "not-a-cidr"}
	assert.Error(t, cfg.Validate())
}

func TestValidateTrustedProxies(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8", "127.0.0.1"}
	assert.NoError(t, cfg.Validate())

	cfg.Server.TrustedProxies = []string{"proxy.internal"}
	assert.Error(t, cfg.Validate())
}

func TestGetDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "db",
		Port:     5432,
		User:     "gepvi",
		Password: "secret",
		DBName:   "gepvi",
		SSLMode:  "disable",
		Schema:   "gepvi_users",
	}
	assert.Equal(t,
		"user=gepvi password=secret dbname=gepvi host=db port=5432 sslmode=disable search_path=gepvi_users",
		cfg.GetDSN(),
	)
}
