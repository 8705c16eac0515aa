package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/crypto-etl/internal/config"
)

// ApplicationName is reported to the server as application_name.
const ApplicationName = "crypto-etl"

// BuildConnString builds a PostgreSQL connection URL from config.
// User and password are escaped, so any characters are allowed.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	query.Set("application_name", ApplicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}
	return u.String()
}
