package quic

import (
	"io"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/quince-project/quic/transport"
)

// Log levels, from least to most verbose. Kept as the small enum the CLI
// flags use; they map onto logrus's levels.
const (
	levelOff = iota
	levelError
	levelInfo
	levelDebug
	levelTrace
)

// logger wraps a logrus.Logger so connections log structured fields
// (address, connection id, trace id) instead of formatted strings.
type logger struct {
	l *logrus.Logger
}

func newLogger() logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	l.Out = io.Discard
	return logger{l: l}
}

func (s *logger) setLevel(level int, w io.Writer) {
	s.l.Out = w
	switch level {
	case levelOff:
		s.l.Out = io.Discard
	case levelError:
		s.l.SetLevel(logrus.ErrorLevel)
	case levelInfo:
		s.l.SetLevel(logrus.InfoLevel)
	case levelDebug:
		s.l.SetLevel(logrus.DebugLevel)
	case levelTrace:
		s.l.SetLevel(logrus.TraceLevel)
	}
}

func (s *logger) log(level int, format string, values ...interface{}) {
	entry := s.l.WithFields(nil)
	switch level {
	case levelError:
		entry.Errorf(format, values...)
	case levelDebug:
		entry.Debugf(format, values...)
	case levelTrace:
		entry.Tracef(format, values...)
	default:
		entry.Infof(format, values...)
	}
}

// attachTransportLog wires the connection's own LogEvent callback to this
// logger, tagged with its address, connection id, and a short trace id so
// concurrent connections' traces can be told apart in one stream.
func (s *logger) attachTransportLog(c *remoteConn) {
	if !s.l.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	entry := s.l.WithFields(logrus.Fields{
		"addr":  c.addr.String(),
		"cid":   fmt8(c.scid),
		"trace": xid.New().String(),
	})
	c.conn.OnLogEvent(func(e transport.LogEvent) {
		fields := make(logrus.Fields, len(e.Fields))
		for _, f := range e.Fields {
			if f.Str != "" {
				fields[f.Key] = f.Str
			} else {
				fields[f.Key] = f.Num
			}
		}
		entry.WithFields(fields).Debug(e.Type)
	})
}

func (s *logger) detachTransportLog(c *remoteConn) {
	c.conn.OnLogEvent(nil)
}

func fmt8(b []byte) string {
	const hex = "0123456789abcdef"
	n := len(b)
	if n > 8 {
		n = 8
	}
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		out[i*2] = hex[b[i]>>4]
		out[i*2+1] = hex[b[i]&0xf]
	}
	return string(out)
}
