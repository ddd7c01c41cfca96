package ascii_test

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/websocket-gateway/internal/gateway"
	"github.com/aelexs/websocket-gateway/internal/gateway/ascii"
	"github.com/aelexs/websocket-gateway/internal/gateway/sessiontest"
	"github.com/aelexs/websocket-gateway/pkg/protocol"
)

func TestProtocol(t *testing.T) {
	p := ascii.Protocol()

	assert.Equal(t, protocol.NameASCII, p.Name)
	assert.Equal(t, protocol.IDASCII, p.ID)
	assert.Equal(t, gateway.DefaultRxBufferSize, p.RxBufferSize)
	assert.Positive(t, p.StateSize)
}

func TestNewState(t *testing.T) {
	st := ascii.Handler{}.NewState()
	require.IsType(t, &ascii.State{}, st)

	base := st.Base()
	base.Pending.WriteString("queued")
	assert.Equal(t, 6, st.(*ascii.State).Pending.Len())
}

func TestHandler_SendChunksTextFrames(t *testing.T) {
	srv := sessiontest.Start(t)

	tests := []struct {
		name  string
		sends []string
		sizes []int
	}{
		{"single frame", []string{"hello"}, []int{5}},
		{"exactly max", []string{strings.Repeat("a", ascii.MaxFrame)}, []int{ascii.MaxFrame}},
		{
			"spills into a second cycle",
			[]string{strings.Repeat("b", ascii.MaxFrame+10)},
			[]int{ascii.MaxFrame, 10},
		},
		{
			"several sends coalesce",
			[]string{strings.Repeat("c", 40000), strings.Repeat("d", 1000)},
			[]int{ascii.MaxFrame, ascii.MaxFrame, 41000 - 2*ascii.MaxFrame},
		},
		{
			"rune at the frame edge",
			[]string{strings.Repeat("a", ascii.MaxFrame-1) + "é" + "tail"},
			[]int{ascii.MaxFrame - 1, 6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, owner := srv.Dial(t, protocol.NameASCII)
			want := strings.Join(tt.sends, "")

			srv.Do(t, func() {
				for _, data := range tt.sends {
					owner.Session().Send([]byte(data))
				}
			})

			frames := sessiontest.ReadFrames(t, c, len(want))
			var sizes []int
			for _, f := range frames {
				assert.Equal(t, websocket.TextMessage, f.Kind)
				assert.True(t, utf8.Valid(f.Data), "frame of %d bytes is not UTF-8", len(f.Data))
				sizes = append(sizes, len(f.Data))
			}
			assert.Equal(t, tt.sizes, sizes)
			assert.Equal(t, want, string(sessiontest.Join(frames)))

			var pending int
			srv.Do(t, func() { pending = owner.Session().PendingLen() })
			assert.Zero(t, pending)
		})
	}
}

func TestHandler_ReceiveReachesOwner(t *testing.T) {
	srv := sessiontest.Start(t)
	c, owner := srv.Dial(t, protocol.NameASCII)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("look ")))
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("north")))

	assert.Eventually(t, func() bool { return owner.Received() == "look north" },
		sessiontest.Timeout, 10*time.Millisecond)
}
