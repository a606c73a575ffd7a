package database

import (
	"fmt"
	"net/url"

	"github.com/mehanisik/crypto-predict-sub000/internal/config"
)

// BuildConnString builds the archive database DSN from config. The password
// is URL-escaped because it usually arrives via ${VAR} expansion and may
// carry characters that break the URL form.
func BuildConnString(cfg config.DBConfig) string {
	escapedPassword := url.QueryEscape(cfg.Password)

	// Defaults applied by config cover this already; kept for callers that
	// build a DBConfig by hand.
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		escapedPassword,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}
