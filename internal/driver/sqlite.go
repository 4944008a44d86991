package driver

import (
	"errors"
	"strconv"
	"strings"

	"modernc.org/sqlite"
)

// SQLite returns the modernc.org/sqlite adapter. The DSN is a file name or
// URI; credentials are ignored and options become URI query parameters
// (e.g. _pragma=busy_timeout(5000)).
func SQLite() Driver {
	return &sqlDriver{name: "sqlite", dsn: sqliteDSN, code: sqliteCode}
}

func sqliteDSN(desc Descriptor) (string, error) {
	if desc.DSN == "" {
		return "", errors.New("sqlite needs a file name")
	}
	if len(desc.Options) == 0 {
		return desc.DSN, nil
	}
	sep := "?"
	if strings.Contains(desc.DSN, "?") {
		sep = "&"
	}
	return desc.DSN + sep + encodeOptions(desc.Options), nil
}

func sqliteCode(err error) string {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return strconv.Itoa(se.Code())
	}
	return ""
}
