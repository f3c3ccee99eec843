package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	godotenv.Load()
	// Startup must not block on the database; main connects after the listener is up.
}

func databaseDSN() string {
	dbHost := os.Getenv("DB_HOST")
	network := "tcp"
	address := fmt.Sprintf("%s:%s", dbHost, os.Getenv("DB_PORT"))

	// DB_HOST=/cloudsql/<CONNECTION_NAME> connects through the Cloud SQL unix socket.
	if strings.HasPrefix(dbHost, "/cloudsql/") {
		network = "unix"
		address = dbHost
	}

	// Every pooled connection runs READ COMMITTED, so posting transactions see committed
	// outbox and idempotency rows.
	return fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true&transaction_isolation=%%27READ-COMMITTED%%27",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		network,
		address,
		os.Getenv("DB_NAME"),
	)
}

// ConnectDatabaseWithRetry connects and sets the global DB. Call it after the HTTP
// listener is up. DB_CONNECT_ATTEMPTS bounds the retries (0 retries forever); when
// they run out GetDB stays nil.
func ConnectDatabaseWithRetry() {
	logger := GetLogger().WithFields(logrus.Fields{"field": "database", "host": os.Getenv("DB_HOST")})
	maxAttempts := intFromEnv("DB_CONNECT_ATTEMPTS", 0)
	dsn := databaseDSN()

	for attempt := 1; ; attempt++ {
		conn, err := openDatabase(dsn)
		if err == nil {
			db = conn
			logger.WithField("attempt", attempt).Info("connected to settlement database")
			return
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			logger.WithField("attempt", attempt).Errorf("giving up on database: %v", err)
			return
		}
		sleep := retrySleep(attempt)
		logger.WithFields(logrus.Fields{"attempt": attempt, "retry_in": sleep.String()}).Warnf("failed to connect database: %v", err)
		time.Sleep(sleep)
	}
}

func openDatabase(dsn string) (*gorm.DB, error) {
	conn, err := gorm.Open(mysql.Open(dsn), initConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	pool := poolSettingsFromEnv()
	if pool.maxOpen > 0 {
		sqlDB.SetMaxOpenConns(pool.maxOpen)
	}
	if pool.maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(pool.maxIdle)
	}
	if pool.maxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.maxLifetime)
	}
	if pool.maxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.maxIdleTime)
	}

	if err := conn.Use(otelgorm.NewPlugin()); err != nil {
		return nil, fmt.Errorf("install otelgorm plugin: %w", err)
	}
	// Queries are scoped to the company in the request context from here on.
	if err := conn.Use(NewCompanyScopePlugin()); err != nil {
		return nil, fmt.Errorf("install company scope plugin: %w", err)
	}
	return conn, nil
}

type poolSettings struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
}

func poolSettingsFromEnv() poolSettings {
	return poolSettings{
		maxOpen:     intFromEnv("DB_MAX_OPEN_CONNS", 50),
		maxIdle:     intFromEnv("DB_MAX_IDLE_CONNS", 25),
		maxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
		maxIdleTime: time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second,
	}
}

// retrySleep backs off exponentially, capped at 30s.
func retrySleep(attempt int) time.Duration {
	sleep := time.Second << min(attempt, 5)
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

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

// initLog keeps gorm on stdout at error level; GORM_LOG_LEVEL=info|warn|silent overrides.
func initLog() logger.Interface {
	level := logger.Error
	switch strings.ToLower(os.Getenv("GORM_LOG_LEVEL")) {
	case "info":
		level = logger.Info
	case "warn":
		level = logger.Warn
	case "silent":
		level = logger.Silent
	}
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			LogLevel:                  level,
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
		},
	)
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}
