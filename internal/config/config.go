package config

import (
	"encoding/base64"
	"fmt"
)

const defaultStorageBucket = "uploads"

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string
	SupabaseURL    string
	SupabaseKey    string
	StorageBucket  string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, supabaseURL, supabaseKey, storageBucket string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if supabaseURL == "" {
		return nil, fmt.Errorf("supabase URL cannot be empty")
	}
	if supabaseKey == "" {
		return nil, fmt.Errorf("supabase key cannot be empty")
	}
	if storageBucket == "" {
		storageBucket = defaultStorageBucket
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		SupabaseURL:    supabaseURL,
		SupabaseKey:    supabaseKey,
		StorageBucket:  storageBucket,
	}, nil
}
