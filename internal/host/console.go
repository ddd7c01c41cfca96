package host

import (
	"bytes"
	"log/slog"

	"github.com/aelexs/websocket-gateway/internal/gateway"
)

// maxLine bounds a buffered console line; longer input is echoed as is.
const maxLine = 4096

// Console is the demo owner. It echoes every complete input line back to its
// session and closes the session on "quit".
type Console struct {
	session *gateway.Session
	logger  *slog.Logger
	line    bytes.Buffer
	closed  bool
}

// Attach returns a gateway.PortDef.Attach hook binding a new Console to each
// established session.
func Attach(logger *slog.Logger) func(s *gateway.Session) gateway.Owner {
	if logger == nil {
		logger = slog.Default()
	}
	return func(s *gateway.Session) gateway.Owner {
		return NewConsole(s, logger)
	}
}

// NewConsole creates a Console bound to s. The caller binds it as the owner.
func NewConsole(s *gateway.Session, logger *slog.Logger) *Console {
	return &Console{session: s, logger: logger}
}

// Input implements gateway.Owner.
func (c *Console) Input(data []byte) {
	if c.closed {
		return
	}
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			c.line.Write(data)
			if c.line.Len() >= maxLine {
				c.flush()
			}
			return
		}
		c.line.Write(data[:i+1])
		data = data[i+1:]
		if c.flush() {
			return
		}
	}
}

// flush handles one buffered line. It reports whether the session was closed.
func (c *Console) flush() bool {
	line := c.line.Bytes()
	defer c.line.Reset()

	if string(bytes.TrimSpace(line)) == "quit" {
		c.closed = true
		c.session.Send([]byte("bye\r\n"))
		c.session.Close()
		c.logger.Info("console closed by peer command",
			slog.String("session_id", c.session.ID().String()),
		)
		return true
	}
	c.session.Send(line)
	return false
}

// Disconnected implements gateway.Owner.
func (c *Console) Disconnected() {
	c.closed = true
	c.line.Reset()
	c.logger.Info("console disconnected",
		slog.String("session_id", c.session.ID().String()),
		slog.String("remote_addr", c.session.RemoteAddr()),
	)
}
