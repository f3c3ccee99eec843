package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestDatabaseDSN(t *testing.T) {
	t.Setenv("DB_USER", "settle")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "settlement")
	t.Setenv("DB_HOST", "10.0.0.5")
	t.Setenv("DB_PORT", "3306")
	assert.Equal(t, "settle:pw@tcp(10.0.0.5:3306)/settlement?multiStatements=true&parseTime=true&transaction_isolation=%27READ-COMMITTED%27", databaseDSN())

	t.Setenv("DB_HOST", "/cloudsql/proj:region:db")
	assert.Equal(t, "settle:pw@unix(/cloudsql/proj:region:db)/settlement?multiStatements=true&parseTime=true&transaction_isolation=%27READ-COMMITTED%27", databaseDSN())
}

func TestRetrySleep(t *testing.T) {
	assert.Equal(t, 2*time.Second, retrySleep(1))
	assert.Equal(t, 16*time.Second, retrySleep(4))
	assert.Equal(t, 30*time.Second, retrySleep(5))
	assert.Equal(t, 30*time.Second, retrySleep(40))
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", " 12 ")
	t.Setenv("X_BAD_INT", "twelve")
	assert.Equal(t, 12, IntFromEnv("X_INT", 1))
	assert.Equal(t, 1, IntFromEnv("X_BAD_INT", 1))

	t.Setenv("X_BOOL", "Yes")
	t.Setenv("X_BOOL_OFF", "0")
	t.Setenv("X_BOOL_BAD", "maybe")
	assert.True(t, BoolFromEnv("X_BOOL", false))
	assert.False(t, BoolFromEnv("X_BOOL_OFF", true))
	assert.True(t, BoolFromEnv("X_BOOL_BAD", true))

	t.Setenv("X_DEC", "0.05")
	t.Setenv("X_DEC_BAD", "5%")
	assert.True(t, DecimalFromEnv("X_DEC", decimal.Zero).Equal(decimal.RequireFromString("0.05")))
	assert.True(t, DecimalFromEnv("X_DEC_BAD", decimal.NewFromInt(1)).Equal(decimal.NewFromInt(1)))

	t.Setenv("LOG_LEVEL_TEST", "debug")
	assert.Equal(t, logrus.DebugLevel, levelFromEnv("LOG_LEVEL_TEST", logrus.ErrorLevel))
	assert.Equal(t, logrus.ErrorLevel, levelFromEnv("LOG_LEVEL_UNSET", logrus.ErrorLevel))
}
