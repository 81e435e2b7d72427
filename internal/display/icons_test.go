package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIconSystem_Render(t *testing.T) {
	is := NewIconSystem(true)

	is.SetUnicodeSupport(true)
	assert.Equal(t, "✔ ", is.Render("success", nil))
	assert.Equal(t, "• ", is.Render("bullet", nil))

	is.SetUnicodeSupport(false)
	assert.Equal(t, "[OK] ", is.Render("success", nil))
	assert.Equal(t, "[P] ", is.Render("partial", nil))

	assert.Empty(t, is.Render("missing", nil))
}

func TestIconSystem_Disabled(t *testing.T) {
	is := NewIconSystem(false)
	is.SetUnicodeSupport(true)

	assert.Empty(t, is.Render("success", nil))
}
