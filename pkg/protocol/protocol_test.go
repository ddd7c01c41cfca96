package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aelexs/websocket-gateway/pkg/protocol"
)

func TestIDString(t *testing.T) {
	tests := []struct {
		id   protocol.ID
		want string
	}{
		{protocol.IDHTTP, "http"},
		{protocol.IDASCII, "ascii"},
		{protocol.IDTelnet, "telnet"},
		{protocol.ID(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.String())
		})
	}
}

func TestIDsAreDistinct(t *testing.T) {
	ids := map[protocol.ID]bool{protocol.IDHTTP: true, protocol.IDASCII: true, protocol.IDTelnet: true}
	assert.Len(t, ids, 3)
}

func TestDeflateExtension(t *testing.T) {
	ext := protocol.DeflateExtension()

	assert.Equal(t, "permessage-deflate", ext.Name)
	assert.Equal(t, "permessage-deflate; client_no_context_takeover; client_max_window_bits", ext.String())
}

func TestExtensionWithoutParams(t *testing.T) {
	assert.Equal(t, "x-custom", protocol.Extension{Name: "x-custom"}.String())
}
