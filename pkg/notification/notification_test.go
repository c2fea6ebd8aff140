package notification

import (
	"bytes"
	"context"
	"net/http"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

var notice = AlertNotice{
	ID:        "a1",
	Message:   "Fell <hiking>",
	Latitude:  40.7128,
	Longitude: -74.006,
	Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
}

func TestNoticeRendering(t *testing.T) {
	assert.Equal(t, "https://www.google.com/maps?q=40.712800,-74.006000", notice.MapLink())
	assert.Contains(t, notice.EmailHTML(), "Fell &lt;hiking&gt;")
	assert.Contains(t, notice.EmailHTML(), notice.MapLink())
	assert.Equal(t, "Emergency Alert: Fell <hiking>. Location: 40.712800,-74.006000", notice.SMSBody())
}

func TestMailerBuildsMessage(t *testing.T) {
	m := NewMailer(MailConfig{Host: "smtp.example.org", Port: 587, From: "noreply@example.org", Username: "u", Password: "p"})
	var got bytes.Buffer
	m.deliver = func(ctx context.Context, msg *mail.Msg) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		_, err := msg.WriteTo(&got)
		return err
	}

	require.NoError(t, m.Send(context.Background(), "admin@example.org", "New Emergency Alert Received!", "<p>hi</p>"))
	assert.Contains(t, got.String(), "Subject: New Emergency Alert Received!")
	assert.Contains(t, got.String(), "<admin@example.org>")
	assert.Contains(t, got.String(), "text/html")

	assert.Error(t, NewMailer(MailConfig{}).Send(context.Background(), "x@example.org", "s", "b"))
}

func TestMailerGivesUpOnStalledServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			// accept but never greet
			go func() {
				<-stop
				conn.Close()
			}()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	m := NewMailer(MailConfig{Host: "127.0.0.1", Port: addr.Port, From: "noreply@example.org", Timeout: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Send(ctx, "admin@example.org", "s", "<p>b</p>") }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after the context expired")
	}
}

func TestHTTPSMSClient(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC1", user)
		assert.Equal(t, "tok", pass)
		assert.NoError(t, r.ParseForm())
		form = map[string]string{"To": r.PostForm.Get("To"), "From": r.PostForm.Get("From"), "Body": r.PostForm.Get("Body")}
		if form["To"] == "+1000" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("invalid number"))
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sms := NewSMS(SMSConfig{Endpoint: srv.URL, AccountSID: "AC1", AuthToken: "tok", From: "+1555"}, nil)
	require.NoError(t, sms.Send(context.Background(), "+1666", notice.SMSBody()))
	assert.Equal(t, "+1555", form["From"])
	assert.Equal(t, notice.SMSBody(), form["Body"])

	err := sms.Send(context.Background(), "+1000", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid number")
}

type recordingSender struct{ calls int }

func (r *recordingSender) Send(context.Context, string, string, string) error { r.calls++; return nil }

func TestAlertNotifierSkipsUnconfiguredChannels(t *testing.T) {
	mail := &recordingSender{}
	n := &AlertNotifier{Mail: mail}
	require.NoError(t, n.NotifyEmail(context.Background(), notice), "no admin address")
	require.NoError(t, n.NotifySMS(context.Background(), notice), "no sms sender")
	assert.Equal(t, 0, mail.calls)

	n.AdminEmail = "admin@example.org"
	require.NoError(t, n.NotifyEmail(context.Background(), notice))
	assert.Equal(t, 1, mail.calls)
}
