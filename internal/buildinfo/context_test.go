package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctx       *Context
		version   string
		buildDate string
	}{
		{"nil", nil, "unknown", "unknown"},
		{"empty", &Context{}, "unknown", "unknown"},
		{"set", &Context{Version: "v1.4.0", BuildDate: "2026-10-01T12:00:00Z"}, "v1.4.0", "2026-10-01T12:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.GetVersion())
			assert.Equal(t, tt.buildDate, tt.ctx.GetBuildDate())
		})
	}
}

func TestContextString(t *testing.T) {
	t.Parallel()
	c := &Context{Version: "v1.4.0"}
	assert.Equal(t, "v1.4.0 (built unknown)", c.String())

	var bi BuildInfo = c
	assert.Equal(t, "v1.4.0", bi.GetVersion())
}
