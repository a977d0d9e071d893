package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), gormConfig(false))
}

// buildMySQLDSN assembles a go-sql-driver DSN. Times are read and written as UTC unless
// the options say otherwise, since campaign schedules are compared against UTC clocks.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	base := mysqldriver.NewConfig()
	base.User = cfg.User
	base.Passwd = cfg.Password
	base.Net = "tcp"
	base.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	base.DBName = cfg.Name
	base.ParseTime = true
	base.Loc = time.UTC

	options := map[string]string{"charset": "utf8mb4"}
	for key, value := range cfg.Options {
		options[key] = value
	}
	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var extra strings.Builder
	for _, key := range keys {
		extra.WriteString("&" + key + "=" + url.QueryEscape(options[key]))
	}

	dsn := base.FormatDSN()
	if strings.Contains(dsn, "?") {
		dsn += extra.String()
	} else {
		dsn += "?" + strings.TrimPrefix(extra.String(), "&")
	}

	// round-trip through the driver so unknown or malformed options fail at start-up
	parsed, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql configuration: %w", err)
	}
	return parsed.FormatDSN(), nil
}
