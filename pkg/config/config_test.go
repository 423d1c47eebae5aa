package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-api/pkg/config"
)

func TestLoad_ValoresPorDefecto(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "2", cfg.NFe.Environment, "homologación por defecto")
	assert.Equal(t, config.ProcessorFake, cfg.NFe.ProcessorDriver)
	assert.Equal(t, 60*time.Second, cfg.NFe.ProcessorTimeout)
	assert.Equal(t, "99999999000191", cfg.NFe.RespTec.CNPJ)
	assert.Equal(t, 8080, cfg.HTTP.Port)
}

func TestLoad_LeeVariablesDeEntorno(t *testing.T) {
	t.Setenv("NFE_AMBIENTE", "1")
	t.Setenv("NFE_PROCESSOR_DRIVER", "BRIDGE")
	t.Setenv("NFE_PROCESSOR_TIMEOUT", "15")
	t.Setenv("NFE_QUERY_INTERVAL", "500ms")
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "1", cfg.NFe.Environment)
	assert.Equal(t, config.ProcessorBridge, cfg.NFe.ProcessorDriver)
	assert.Equal(t, 15*time.Second, cfg.NFe.ProcessorTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.NFe.QueryInterval)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestLoad_AmbienteInvalido(t *testing.T) {
	t.Setenv("NFE_AMBIENTE", "3")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestDBConfig_DSNEscapaPassword(t *testing.T) {
	c := config.DBConfig{Host: "db", Port: 5432, User: "nfe", Password: "p@ss/word", DBName: "nfe", SSLMode: "disable"}
	assert.Equal(t, "postgres://nfe:p%40ss%2Fword@db:5432/nfe?sslmode=disable", c.DSN())

	c.DatabaseURL = "postgres://x@y/z"
	assert.Equal(t, "postgres://x@y/z", c.ConnectionString())
}

func TestLoad_DriverDePersistencia(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.DriverPostgres, cfg.DB.Driver)

	t.Setenv("DB_DRIVER", "Memory")
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.DriverMemory, cfg.DB.Driver)

	t.Setenv("DB_DRIVER", "mysql")
	_, err = config.Load()
	assert.Error(t, err)
}
