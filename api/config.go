package api

import (
	"crypto/ed25519"
	"time"
)

type ServerConfig struct {
	// ID 是此節點在consumer group中的成員名稱
	ID string

	OIDC    OIDCConfig
	S3      S3Config
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Session SessionConfig
}

type OIDCConfig struct {
	Providers map[string]OIDCProviderConfig
}

type OIDCProviderConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
}

type S3Config struct {
	AccessKeyID      string
	SecretAccessKey  string
	Endpoint         string
	Bucket           string
	PublicBaseURL    string
	RateLimitPerHour int64
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix 是所有鍵的共用前綴，用於隔離不同環境
	KeyPrefix string
	// ExpireTime 是拍賣價格快取鍵的存活時間
	ExpireTime time.Duration

	ConsumerGroup string
	StreamKeys    RedisStreamKeys
}

type RedisStreamKeys struct {
	Bids     string
	Comments string
	Status   string
}

type AuthConfig struct {
	PrivateKey     ed25519.PrivateKey
	Issuer         string
	Audience       string
	ExpireDuration time.Duration
}

type SessionConfig struct {
	KeyForCookie string
	CookieMaxAge time.Duration
}
