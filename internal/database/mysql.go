package database

import (
	"fmt"
	"net"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func mysqlDialector(cfg Config) (gorm.Dialector, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return mysql.Open(dsn), nil
}

// buildMySQLDSN goes through the driver's Config so credentials holding
// '@', ':' or '/' survive FormatDSN.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if err := requireIdentity("mysql", cfg); err != nil {
		return "", err
	}

	mc := gomysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = endpoint(cfg, "127.0.0.1", 3306)
	mc.User, mc.Passwd, mc.DBName = cfg.User, cfg.Password, cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range cfg.Options {
		mc.Params[k] = v
	}
	return mc.FormatDSN(), nil
}

func requireIdentity(driver string, cfg Config) error {
	if cfg.User == "" || cfg.Name == "" {
		return fmt.Errorf("%s configuration requires user and database name", driver)
	}
	return nil
}

// endpoint joins the configured host and port, filling either from the
// driver's defaults.
func endpoint(cfg Config, host string, port int) string {
	if cfg.Host != "" {
		host = cfg.Host
	}
	if cfg.Port > 0 {
		port = cfg.Port
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
