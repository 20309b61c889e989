package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeatFilterMatching(t *testing.T) {
	f := NewHeartbeatFilter(DefaultHeartbeatPatterns())

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"exact sentinel", "HEARTBEAT_OK", true},
		{"lowercase sentinel", "heartbeat_ok", true},
		{"mixed case", "HeArTbEaT_oK", true},
		{"embedded sentinel", "status: HEARTBEAT_OK (alive)", true},
		{"surrounding whitespace", "  HEARTBEAT_OK\n", true},
		{"real content", "Hello there", false},
		{"empty", "", false},
		{"whitespace only", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.IsHeartbeat(tt.text))
		})
	}
}

func TestHeartbeatFilterIdempotent(t *testing.T) {
	f := NewHeartbeatFilter(DefaultHeartbeatPatterns())

	once := f.Filter("HEARTBEAT_OK")
	assert.Equal(t, "", once)
	assert.Equal(t, once, f.Filter(once))

	kept := f.Filter("real content")
	assert.Equal(t, "real content", kept)
	assert.Equal(t, kept, f.Filter(kept))
}

func TestHeartbeatFilterInjectedPatterns(t *testing.T) {
	f := NewHeartbeatFilter([]string{"PING", ""})

	assert.True(t, f.IsHeartbeat("ping"))
	assert.False(t, f.IsHeartbeat("HEARTBEAT_OK"))

	// Empty patterns are dropped rather than matching everything.
	assert.False(t, f.IsHeartbeat("anything"))

	empty := NewHeartbeatFilter(nil)
	assert.False(t, empty.IsHeartbeat("anything"))
}
