// config_test.go tests config files
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileToTest is a relative path to the configuration file to test (ie. walletboot/cmd/conf.json)
var fileToTest string = "../../cmd/conf.json"

// TestConfig extracts config from a file and checks values loaded
func TestConfig(t *testing.T) {
	conf, err := ExtractConfiguration(fileToTest)
	require.NoError(t, err)

	assert.Equal(t, "3030", conf.Port)
	assert.Equal(t, ModeAuto, conf.Mode)
	assert.Equal(t, 10*time.Second, time.Duration(conf.Timeout))
	require.Len(t, conf.Bc, 3)
	assert.Equal(t, []string{"sepolia", "holesky", "mainNet"}, conf.Networks())
	assert.NoError(t, conf.Validate())
}

func TestConfigNotFound(t *testing.T) {
	_, err := ExtractConfiguration("does-not-exist.json")
	assert.Error(t, err)
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("WB_MODE", ModeConstrained)
	t.Setenv("WB_DBTYPE", "memory")
	t.Setenv("WB_TIMEOUT", "250ms")
	t.Setenv("WB_PASSPHRASE", "correct horse")
	t.Setenv("WB_BLOCKCHAINS", `[{"name":"local","node":"http://localhost:8545","secret":"user:pass"}]`)

	conf, err := ExtractConfiguration("")
	require.NoError(t, err)

	assert.Equal(t, ModeConstrained, conf.Mode)
	assert.Equal(t, "memory", conf.DBType)
	assert.Equal(t, 250*time.Millisecond, time.Duration(conf.Timeout))
	assert.Equal(t, "correct horse", conf.Passphrase)
	require.Len(t, conf.Bc, 1)
	assert.Equal(t, "user:pass", conf.Bc[0].Secret)
	assert.NotContains(t, conf.String(), "correct horse")
}

func TestConfigBadEnv(t *testing.T) {
	t.Setenv("WB_BLOCKCHAINS", `not json`)

	_, err := ExtractConfiguration("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := ExtractConfiguration("")
	require.NoError(t, err)

	cases := []struct {
		name   string
		modify func(c *ServiceConfig)
		err    error
	}{
		{"defaults", func(c *ServiceConfig) {}, nil},
		{"badMode", func(c *ServiceConfig) { c.Mode = "web" }, ErrBadMode},
		{"emptySentinel", func(c *ServiceConfig) { c.Sentinel = "" }, ErrBadSentinel},
		{"hexSentinel", func(c *ServiceConfig) { c.Sentinel = "0x357dd3856d856197c1a000bbAb4aBCB97Dfc92c4" }, ErrBadSentinel},
		{"badPath", func(c *ServiceConfig) { c.Path = "m/44'/0'/0'/0/0" }, ErrBadPath},
		{"badChange", func(c *ServiceConfig) { c.Path = "m/44'/60'/0'/2/0" }, ErrBadPath},
		{"zeroTimeout", func(c *ServiceConfig) { c.Timeout = 0 }, ErrBadTimeout},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			conf := base
			c.modify(&conf)

			err := conf.Validate()
			if c.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, c.err)
			}
		})
	}
}

func TestParsePath(t *testing.T) {
	conf := ServiceConfig{Path: "m/44'/60'/2'/1/7"}

	w, ch, i, err := conf.ParsePath()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), w)
	assert.Equal(t, uint8(1), ch)
	assert.Equal(t, uint32(7), i)
}

func TestDurationJSON(t *testing.T) {
	var d Duration

	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, time.Duration(d))

	require.NoError(t, d.UnmarshalJSON([]byte(`2`)))
	assert.Equal(t, 2*time.Second, time.Duration(d))

	assert.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))
}
