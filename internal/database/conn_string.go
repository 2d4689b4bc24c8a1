package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/wire/internal/config"
)

// applicationName is reported to the server as application_name.
const applicationName = "wire-archiver"

// BuildConnString builds a PostgreSQL connection URL from config. User and password are
// escaped so special characters survive.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
		RawQuery: url.Values{
			"sslmode":          {sslMode},
			"application_name": {applicationName},
		}.Encode(),
	}
	return u.String()
}
