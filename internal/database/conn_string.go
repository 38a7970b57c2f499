package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/motionfeed/internal/config"
)

// ApplicationName identifies motionfeed sessions in pg_stat_activity.
const ApplicationName = "motionfeed"

// BuildConnString builds a PostgreSQL connection URL from config.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}

	q := url.Values{}
	q.Set("application_name", ApplicationName)
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()

	return u.String()
}
