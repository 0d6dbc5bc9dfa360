package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("EARSHOT_CONFIG", "/etc/earshot/config.json")
	assert.Equal(t, "/etc/earshot/config.json", GetEnv("EARSHOT_CONFIG", "config.json"))

	t.Setenv("EARSHOT_CONFIG", "")
	assert.Equal(t, "config.json", GetEnv("EARSHOT_CONFIG", "config.json"))
}
