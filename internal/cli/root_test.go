package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	assert.Equal(t, "marketlens", cmd.Use)
	assert.Equal(t, Version, cmd.Version)

	subs := map[string]bool{}
	for _, sub := range cmd.Commands() {
		subs[sub.Name()] = true
	}
	for _, name := range []string{
		"serve", "migrate", "createsuperuser", "sync", "crawl", "worker",
		"trends", "themes", "news", "templates", "version", "completion",
	} {
		assert.True(t, subs[name], "subcommand %q should exist", name)
	}
}

func TestRootCmd_GlobalFlags(t *testing.T) {
	cmd := NewRootCmd()

	for _, flag := range []string{
		"config", "server-host", "server-port", "database-host",
		"database-name", "log-level", "log-format",
	} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}
