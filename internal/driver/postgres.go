package driver

import (
	"errors"
	"net/url"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// Postgres returns the lib/pq adapter.
func Postgres() Driver {
	return &sqlDriver{name: "postgres", dsn: postgresDSN, code: postgresCode}
}

// postgresDSN accepts both URL and key/value connection strings.
func postgresDSN(desc Descriptor) (string, error) {
	if strings.HasPrefix(desc.DSN, "postgres://") || strings.HasPrefix(desc.DSN, "postgresql://") {
		u, err := url.Parse(desc.DSN)
		if err != nil {
			return "", err
		}
		if desc.Credentials.User != "" {
			if desc.Credentials.Password != "" {
				u.User = url.UserPassword(desc.Credentials.User, desc.Credentials.Password)
			} else {
				u.User = url.User(desc.Credentials.User)
			}
		}
		q := u.Query()
		for k, v := range desc.Options {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	parts := []string{}
	if s := strings.TrimSpace(desc.DSN); s != "" {
		parts = append(parts, s)
	}
	if desc.Credentials.User != "" {
		parts = append(parts, "user="+quoteValue(desc.Credentials.User))
	}
	if desc.Credentials.Password != "" {
		parts = append(parts, "password="+quoteValue(desc.Credentials.Password))
	}

	keys := make([]string, 0, len(desc.Options))
	for k := range desc.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+quoteValue(desc.Options[k]))
	}
	return strings.Join(parts, " "), nil
}

// quoteValue quotes a key/value connection string value the way libpq expects.
func quoteValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func postgresCode(err error) string {
	var pe *pq.Error
	if errors.As(err, &pe) {
		return string(pe.Code)
	}
	return ""
}
