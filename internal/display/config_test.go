package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDisplayConfig(t *testing.T) {
	cfg := DefaultDisplayConfig()

	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.ColorEnabled)
	assert.True(t, cfg.UseIcons)
	assert.Equal(t, "auto", cfg.Theme)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.NotNil(t, cfg.Writer)
}

func TestDisplayConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*DisplayConfig)
		wantErr string
	}{
		{"bad theme", func(c *DisplayConfig) { c.Theme = "neon" }, "invalid theme 'neon'"},
		{"bad format", func(c *DisplayConfig) { c.OutputFormat = "xml" }, "invalid output format 'xml'"},
		{"bad style", func(c *DisplayConfig) { c.TableStyle = "fancy" }, "invalid table style 'fancy'"},
		{"narrow table", func(c *DisplayConfig) { c.MaxTableWidth = 10 }, "max table width"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDisplayConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDisplayConfig_SetDefaults(t *testing.T) {
	cfg := &DisplayConfig{}
	cfg.SetDefaults()

	assert.Equal(t, "auto", cfg.Theme)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.Equal(t, "default", cfg.TableStyle)
	assert.Equal(t, 120, cfg.MaxTableWidth)
	assert.NotNil(t, cfg.Writer)
}

func TestDisplayConfig_QuietDisablesColor(t *testing.T) {
	cfg := DefaultDisplayConfig()
	assert.True(t, cfg.IsColorEnabled())

	cfg.QuietMode = true
	assert.False(t, cfg.IsColorEnabled())
}
