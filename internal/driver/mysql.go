package driver

import (
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQL returns the go-sql-driver/mysql adapter.
func MySQL() Driver {
	return &sqlDriver{name: "mysql", dsn: mysqlDSN, code: mysqlCode}
}

// mysqlDSN appends the options as DSN parameters before parsing so that both
// driver settings (timeout, tls) and session variables are accepted, then
// merges the credentials.
func mysqlDSN(desc Descriptor) (string, error) {
	dsn := desc.DSN
	if len(desc.Options) > 0 {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + encodeOptions(desc.Options)
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	if desc.Credentials.User != "" {
		cfg.User = desc.Credentials.User
	}
	if desc.Credentials.Password != "" {
		cfg.Passwd = desc.Credentials.Password
	}
	if _, ok := desc.Options["parseTime"]; !ok {
		cfg.ParseTime = true
	}
	return cfg.FormatDSN(), nil
}

func mysqlCode(err error) string {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return strconv.Itoa(int(me.Number))
	}
	return ""
}

// encodeOptions renders options in a stable order.
func encodeOptions(opts Options) string {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(opts[k]))
	}
	return strings.Join(parts, "&")
}
