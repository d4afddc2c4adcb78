package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("NEEDLE_TEST_HOST", "db.internal")

	assert.Equal(t, "host: db.internal", expandEnv("host: ${NEEDLE_TEST_HOST}"))
	assert.Equal(t, "host: db.internal", expandEnv("host: ${NEEDLE_TEST_HOST:localhost}"))
	assert.Equal(t, "host: localhost", expandEnv("host: ${NEEDLE_TEST_UNSET:localhost}"))
	assert.Equal(t, "port: ", expandEnv("port: ${NEEDLE_TEST_UNSET:}"))
	// 无默认值且未定义时原样保留
	assert.Equal(t, "host: ${NEEDLE_TEST_UNSET}", expandEnv("host: ${NEEDLE_TEST_UNSET}"))
	assert.Equal(t, "plain text", expandEnv("plain text"))
}

func TestExpandEnvEmptyValueWins(t *testing.T) {
	t.Setenv("NEEDLE_TEST_EMPTY", "")

	assert.Equal(t, "key: ", expandEnv("key: ${NEEDLE_TEST_EMPTY:fallback}"))
}
