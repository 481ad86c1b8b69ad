package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dexhub/api"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")
	pflag.String("server-id", "dexhub-node-1", "")

	// oidc config
	pflag.String("oidc-provider-name", "google", "")
	pflag.String("oidc-issuer-url", "", "")
	pflag.String("oidc-client-id", "", "")
	pflag.String("oidc-client-secret", "", "")

	// s3 config
	pflag.String("s3-endpoint", "", "")
	pflag.String("s3-bucket", "", "")
	pflag.String("s3-public-base-url", "", "")
	pflag.String("s3-access-key-id", "", "")
	pflag.String("s3-secret-access-key", "", "")
	pflag.Int64("s3-rate-limit-per-hour", 30, "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "dexhub:", "")
	pflag.Duration("redis-expire-time", 24*time.Hour, "")
	pflag.String("redis-consumer-group", "dexhub-bid-sync", "")

	// redis stream keys
	pflag.String("redis-stream-key-for-bids", "dexhub-bid-stream", "")
	pflag.String("redis-stream-key-for-comments", "dexhub-comment-stream", "")
	pflag.String("redis-stream-key-for-status", "dexhub-status-stream", "")

	// auth config
	pflag.String("auth-private-key", "", "base64 encoded ed25519 private key")
	pflag.String("auth-issuer", "dexhub", "")
	pflag.String("auth-audience", "dexhub", "")
	pflag.Duration("auth-expire-duration", 3*time.Hour, "")

	// session config
	pflag.String("session-key-for-cookie", "session", "")
	pflag.Duration("session-cookie-max-age", 10*time.Minute, "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("DEXHUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// 解析簽章用私鑰
	var privateKey ed25519.PrivateKey
	if raw, err := base64.StdEncoding.DecodeString(viper.GetString("auth-private-key")); err == nil && len(raw) == ed25519.PrivateKeySize {
		privateKey = ed25519.PrivateKey(raw)
	}

	// initial arguments
	return Args{
		ServerURL: viper.GetString("server-url"),
		ServerConfig: api.ServerConfig{
			ID: viper.GetString("server-id"),
			OIDC: api.OIDCConfig{
				Providers: map[string]api.OIDCProviderConfig{
					viper.GetString("oidc-provider-name"): {
						IssuerURL:    viper.GetString("oidc-issuer-url"),
						ClientID:     viper.GetString("oidc-client-id"),
						ClientSecret: viper.GetString("oidc-client-secret"),
					},
				},
			},
			S3: api.S3Config{
				Endpoint:         viper.GetString("s3-endpoint"),
				Bucket:           viper.GetString("s3-bucket"),
				PublicBaseURL:    viper.GetString("s3-public-base-url"),
				AccessKeyID:      viper.GetString("s3-access-key-id"),
				SecretAccessKey:  viper.GetString("s3-secret-access-key"),
				RateLimitPerHour: viper.GetInt64("s3-rate-limit-per-hour"),
			},
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
			},
			Redis: api.RedisConfig{
				Addr:          viper.GetString("redis-addr"),
				Password:      viper.GetString("redis-password"),
				DB:            viper.GetInt("redis-db"),
				KeyPrefix:     viper.GetString("redis-key-prefix"),
				ExpireTime:    viper.GetDuration("redis-expire-time"),
				ConsumerGroup: viper.GetString("redis-consumer-group"),
				StreamKeys: api.RedisStreamKeys{
					Bids:     viper.GetString("redis-stream-key-for-bids"),
					Comments: viper.GetString("redis-stream-key-for-comments"),
					Status:   viper.GetString("redis-stream-key-for-status"),
				},
			},
			Auth: api.AuthConfig{
				PrivateKey:     privateKey,
				Issuer:         viper.GetString("auth-issuer"),
				Audience:       viper.GetString("auth-audience"),
				ExpireDuration: viper.GetDuration("auth-expire-duration"),
			},
			Session: api.SessionConfig{
				KeyForCookie: viper.GetString("session-key-for-cookie"),
				CookieMaxAge: viper.GetDuration("session-cookie-max-age"),
			},
		},
	}
}

type Args struct {
	ServerURL    string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() bool {
	if args.ServerURL == "" || len(args.ServerConfig.Auth.PrivateKey) == 0 {
		return false
	}
	for _, provider := range args.ServerConfig.OIDC.Providers {
		if provider.IssuerURL == "" || provider.ClientID == "" || provider.ClientSecret == "" {
			return false
		}
	}
	return true
}
