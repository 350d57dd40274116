package emailsvc

import (
	"bytes"
	"context"
	"net"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mycourse/core"
)

// smtpRecorder is a minimal SMTP server accepting every command.
type smtpRecorder struct {
	mu       sync.Mutex
	commands []string
	data     []string
}

func (r *smtpRecorder) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 localhost ESMTP ready")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		r.mu.Lock()
		r.commands = append(r.commands, line)
		r.mu.Unlock()

		switch strings.ToUpper(strings.Fields(line + " ")[0]) {
		case "DATA":
			_ = tp.PrintfLine("354 end data with <CR><LF>.<CR><LF>")
			body, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			r.mu.Lock()
			r.data = append(r.data, string(body))
			r.mu.Unlock()
			_ = tp.PrintfLine("250 queued")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("250 ok")
		}
	}
}

func (r *smtpRecorder) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...), append([]string(nil), r.data...)
}

func startSMTPServer(t *testing.T) (int, *smtpRecorder) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	rec := new(smtpRecorder)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			rec.serve(conn)
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		<-done
	})
	return ln.Addr().(*net.TCPAddr).Port, rec
}

func newTestSMTPService(port int) *smtpService {
	conf := core.NewConfig()
	conf.AppName = "MyCourse"
	conf.SMTP = core.SMTPConfig{Host: "127.0.0.1", Port: port, Security: SecurityNone}
	return NewSMTPService(conf, nopLogger{})
}

func TestSMTPService_Send(t *testing.T) {
	port, rec := startSMTPServer(t)
	svc := newTestSMTPService(port)

	msg := &core.EmailMessage{
		To:          []mail.Address{{Name: "Ada", Address: "ada@test.com"}},
		Cc:          []mail.Address{{Address: "grace@test.com"}},
		Bcc:         []mail.Address{{Address: "hidden@test.com"}},
		ReplyTo:     &mail.Address{Address: "alan@test.com"},
		Subject:     "Welcome",
		BodyStr:     "Hello Ada",
		HTMLContent: "<p>Hello Ada</p>",
	}
	require.NoError(t, msg.Attach(bytes.NewBufferString("a,b\n1,2\n"), "data.csv", "text/csv"))
	require.NoError(t, svc.Send(context.Background(), msg))

	commands, data := rec.snapshot()
	assert.Contains(t, commands, "RCPT TO:<ada@test.com>")
	assert.Contains(t, commands, "RCPT TO:<grace@test.com>")
	assert.Contains(t, commands, "RCPT TO:<hidden@test.com>")
	require.Len(t, data, 1)
	assert.Contains(t, data[0], "Subject: [MyCourse] Welcome")
	assert.Contains(t, data[0], "Hello Ada")
	assert.Contains(t, data[0], "<p>Hello Ada</p>")
	assert.Contains(t, data[0], "data.csv")
	assert.Contains(t, data[0], "alan@test.com")
}

func TestSMTPService_Send_Errors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	svc := newTestSMTPService(port)

	t.Run("nothing to send", func(t *testing.T) {
		err := svc.Send(context.Background(), &core.EmailMessage{Subject: "empty"})
		assert.True(t, core.IsSendError(err))
	})

	t.Run("server down", func(t *testing.T) {
		err := svc.Send(context.Background(), &core.EmailMessage{
			To:      []mail.Address{{Address: "ada@test.com"}},
			Subject: "Hi",
			BodyStr: "Hello",
		})
		require.Error(t, err)
		assert.True(t, core.IsSendError(err))
	})
}

func TestSMTPService_newMsg(t *testing.T) {
	svc := newTestSMTPService(25)
	msg := &core.EmailMessage{
		To:          []mail.Address{{Address: "ada@test.com"}},
		Subject:     "html only",
		HTMLContent: "<b>hi</b>",
	}
	m, err := svc.newMsg(msg)
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = m.WriteTo(&out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "text/html")
	assert.Contains(t, out.String(), "<b>hi</b>")

	_, err = svc.newMsg(&core.EmailMessage{To: []mail.Address{{Address: "not an address"}}})
	assert.Error(t, err)
}
