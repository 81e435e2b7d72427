package restore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptions_SetDefaults(t *testing.T) {
	var o Options
	o.SetDefaults()

	assert.Equal(t, 5*time.Minute, o.Timeout)
	assert.Equal(t, "alembic_version", o.MigrationTable)
	assert.Equal(t, "version_num", o.MigrationVersionColumn)
	assert.Equal(t, []string{"users"}, o.CountTables)
	assert.False(t, o.DisableSafetyDump)
	assert.NoError(t, o.Validate())
}

func TestOptions_Validate(t *testing.T) {
	assert.Error(t, (&Options{Timeout: -time.Second}).Validate())
	assert.Error(t, (&Options{ColumnAliases: map[string]string{"clave": ""}}).Validate())
}

func TestOptions_Aliases(t *testing.T) {
	o := Options{ColumnAliases: map[string]string{"clave": "secret", "alias": "nick"}}
	merged := o.aliases()

	assert.Equal(t, "secret", merged["clave"])
	assert.Equal(t, "nick", merged["alias"])
	assert.Equal(t, "password", merged["contraseña"])
}
