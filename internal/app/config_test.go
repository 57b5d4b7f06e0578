package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/blotter/internal/storage"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "console", cfg.Server.LogFormat)
	require.Equal(t, "https://portal.example.org", cfg.Server.BaseURL)
	require.Equal(t, 90*time.Second, cfg.Server.UploadTimeout)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 3*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "case-system", cfg.Auth.JWT.Issuer)
	require.Equal(t, "blotter", cfg.Auth.JWT.Audience)
	require.Equal(t, time.Minute, cfg.Auth.JWT.Leeway)

	require.Equal(t, 12*time.Hour, cfg.Guest.SessionTTL)
	require.False(t, cfg.Guest.CookieSecure)
	require.Equal(t, 3, cfg.Guest.RateLimit.Points)
	require.Equal(t, 15*time.Minute, cfg.Guest.RateLimit.Duration)
	require.Equal(t, int64(10<<20), cfg.Guest.MaxUploadSize)
	require.Equal(t, []string{"image/png", "application/pdf"}, cfg.Guest.AllowedTypes)
	require.Equal(t, 20, cfg.Guest.MaxUploadsPerLink)
	require.Equal(t, 2, cfg.Guest.MaxActiveLinksPerCase)
	require.Equal(t, LinkDurationCfg{Default: 48, Min: 2, Max: 96}, cfg.Guest.LinkDuration)

	require.Equal(t, "s3", cfg.Storage.Driver)
	s3cfg := cfg.Storage.S3Config()
	require.Equal(t, "blotter-evidence", s3cfg.Bucket)
	require.Equal(t, "guest", s3cfg.Prefix)
	require.True(t, s3cfg.ForcePathStyle)

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.Equal(t, 30, cfg.Maintenance.AuditRetentionDays)
	require.Equal(t, "@every 5m", cfg.Maintenance.CacheSchedule)
	require.Equal(t, "@daily", cfg.Maintenance.AuditSchedule)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 24*time.Hour, cfg.Guest.SessionTTL)
	require.True(t, cfg.Guest.CookieSecure)
	require.Equal(t, 5, cfg.Guest.RateLimit.Points)
	require.Equal(t, 10*time.Minute, cfg.Guest.RateLimit.Duration)
	require.Equal(t, int64(20<<20), cfg.Guest.MaxUploadSize)
	require.ElementsMatch(t, []string{"image/jpeg", "image/png", "image/webp", "image/gif", "application/pdf"}, cfg.Guest.AllowedTypes)
	require.Equal(t, 3, cfg.Guest.MaxUploadsPerLink)
	require.Equal(t, 5, cfg.Guest.MaxActiveLinksPerCase)
	require.Equal(t, LinkDurationCfg{Default: 24, Min: 1, Max: 168}, cfg.Guest.LinkDuration)
	require.Equal(t, "filesystem", cfg.Storage.Driver)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("BLOTTER_GUEST_RATE_LIMIT_POINTS", "7")
	t.Setenv("BLOTTER_SERVER_PORT", "9191")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Guest.RateLimit.Points)
	require.Equal(t, 9191, cfg.Server.Port)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Guest: GuestConfig{
				RateLimit:     GuestRateLimit{Points: 5, Duration: time.Minute},
				MaxUploadSize: 1024,
				LinkDuration:  LinkDurationCfg{Default: 72, Min: 1, Max: 168},
			},
			Storage: StorageConfig{Driver: "filesystem", Filesystem: FilesystemStorageConfig{Root: "/tmp/evidence"}},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Storage = StorageConfig{Driver: "s3"}
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Storage.Driver = "ftp"
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Guest.LinkDuration.Default = 200
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Guest.RateLimit.Points = 0
	require.Error(t, cfg.Validate())
}

func TestOpenObjectStoreFilesystem(t *testing.T) {
	cfg := StorageConfig{Driver: "filesystem", Filesystem: FilesystemStorageConfig{Root: t.TempDir()}}
	store, err := cfg.OpenObjectStore(context.Background())
	require.NoError(t, err)
	require.IsType(t, &storage.FilesystemStore{}, store)

	_, err = StorageConfig{Driver: "tape"}.OpenObjectStore(context.Background())
	require.Error(t, err)
}

func TestAuthConfigAdapter(t *testing.T) {
	cfg := AuthConfig{JWT: JWTSettings{Secret: "s", Issuer: " case-system ", Audience: "blotter", Leeway: -time.Second}}
	jwtCfg := cfg.JWTServiceConfig()
	require.Equal(t, "case-system", jwtCfg.Issuer)
	require.Equal(t, "blotter", jwtCfg.Audience)
	require.Equal(t, 15*time.Minute, jwtCfg.AccessTokenTTL)
	require.Zero(t, jwtCfg.Leeway)

	cfg.JWT.Leeway = 45 * time.Second
	require.Equal(t, 45*time.Second, cfg.JWTServiceConfig().Leeway)
}

func TestGuestConfigAdapters(t *testing.T) {
	guest := GuestConfig{RateLimit: GuestRateLimit{Points: 3, Duration: time.Minute}}
	require.Equal(t, 3, guest.PINLimiterConfig().Points)
	require.Equal(t, time.Minute, guest.PINLimiterConfig().Duration)

	cache := CacheConfig{Redis: RedisCacheConfig{Address: " redis:6379 ", DB: 1}}
	require.Equal(t, "redis:6379", cache.RedisClientConfig().Address)
}

func TestSMTPSettingsDefaultSender(t *testing.T) {
	cfg := &Config{}
	cfg.Server.BaseURL = "https://blotter.brgy.example.ph/portal"
	cfg.Email.SMTP.Host = " smtp.example.ph "
	require.Equal(t, "noreply@blotter.brgy.example.ph", cfg.SMTPSettings().From)
	require.Equal(t, "smtp.example.ph", cfg.SMTPSettings().Host)

	cfg.Email.SMTP.From = "desk@brgy.example.ph"
	require.Equal(t, "desk@brgy.example.ph", cfg.SMTPSettings().From)

	require.Empty(t, (&Config{}).SMTPSettings().From)
}
