package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db    *gorm.DB
	erpDb *gorm.DB
)

// GetDB returns the application database (users, products).
func GetDB() *gorm.DB {
	return db
}

// GetErpDB returns the legacy ERP database. It is only ever read.
func GetErpDB() *gorm.DB {
	return erpDb
}

func init() {
	// Load env from .env
	godotenv.Load()
	// Do NOT block startup in init() waiting for DB; main connects after the
	// HTTP listener is up.
}

// ConnectDatabaseWithRetry connects and sets the global application DB.
// Call this from main() AFTER the HTTP server is listening.
func ConnectDatabaseWithRetry() {
	cfg := mysqldriver.NewConfig()
	cfg.User = os.Getenv("DB_USER")
	cfg.Passwd = os.Getenv("DB_PASSWORD")
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%s", os.Getenv("DB_HOST"), os.Getenv("DB_PORT"))
	cfg.DBName = os.Getenv("DB_NAME")
	cfg.ParseTime = true
	cfg.MultiStatements = true

	// Cloud SQL style unix socket: DB_HOST=/cloudsql/<CONNECTION_NAME>
	if dbHost := os.Getenv("DB_HOST"); strings.HasPrefix(dbHost, "/cloudsql/") {
		cfg.Net = "unix"
		cfg.Addr = dbHost
	}

	db = openWithRetry("app", mysql.Open(cfg.FormatDSN()), "DB_")
}

// ConnectErpDatabaseWithRetry connects and sets the global legacy ERP DB (SQL Server).
func ConnectErpDatabaseWithRetry() {
	port := strings.TrimSpace(os.Getenv("ERP_DB_PORT"))
	if port == "" {
		port = "1433"
	}
	host := strings.TrimSpace(os.Getenv("ERP_DB_HOST"))
	if host == "" {
		host = "localhost"
	}

	query := url.Values{}
	query.Add("database", os.Getenv("ERP_DB_NAME"))
	query.Add("encrypt", "true")
	query.Add("TrustServerCertificate", "true")
	query.Add("app name", "erp_backend")
	dsn := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(os.Getenv("ERP_DB_USER"), os.Getenv("ERP_DB_PASSWORD")),
		Host:     fmt.Sprintf("%s:%s", host, port),
		RawQuery: query.Encode(),
	}

	erpDb = openWithRetry("erp", sqlserver.Open(dsn.String()), "ERP_DB_")
}

func openWithRetry(name string, dialector gorm.Dialector, envPrefix string) *gorm.DB {
	var attempt int
	for {
		attempt++
		conn, err := gorm.Open(dialector, initConfig())
		if err == nil {
			// Env overrides (optional), per database:
			// - <prefix>MAX_OPEN_CONNS (default 50)
			// - <prefix>MAX_IDLE_CONNS (default 25)
			// - <prefix>CONN_MAX_LIFETIME_SECONDS (default 300)
			// - <prefix>CONN_MAX_IDLE_TIME_SECONDS (default 60)
			if sqlDB, derr := conn.DB(); derr == nil && sqlDB != nil {
				maxOpen := intFromEnv(envPrefix+"MAX_OPEN_CONNS", 50)
				maxIdle := intFromEnv(envPrefix+"MAX_IDLE_CONNS", 25)
				connMaxLife := time.Duration(intFromEnv(envPrefix+"CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second
				connMaxIdle := time.Duration(intFromEnv(envPrefix+"CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second

				if maxOpen > 0 {
					sqlDB.SetMaxOpenConns(maxOpen)
				}
				if maxIdle >= 0 {
					sqlDB.SetMaxIdleConns(maxIdle)
				}
				if connMaxLife > 0 {
					sqlDB.SetConnMaxLifetime(connMaxLife)
				}
				if connMaxIdle > 0 {
					sqlDB.SetConnMaxIdleTime(connMaxIdle)
				}
			}

			if pluginErr := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(name))); pluginErr != nil {
				log.Printf("%s db connected but failed to install otelgorm plugin: %v", name, pluginErr)
			}
			log.Printf("connected to %s database (attempt=%d)", name, attempt)
			return conn
		}

		sleep := backoff(attempt)
		log.Printf("failed to connect %s database (attempt=%d): %v; retrying in %s", name, attempt, err, sleep)
		time.Sleep(sleep)
	}
}

func backoff(attempt int) time.Duration {
	sleep := time.Second * time.Duration(1<<min(attempt, 5))
	if sleep > 30*time.Second {
		sleep = 30 * time.Second
	}
	return sleep
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// IntFromEnv is intFromEnv for other packages; non-positive values fall back to def.
func IntFromEnv(key string, def int) int {
	n := intFromEnv(key, def)
	if n <= 0 {
		return def
	}
	return n
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

func initLog() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}
