// Package mail renders notification emails and delivers them in the background.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"sync"
	"text/template"
	"time"

	"go.uber.org/zap"
)

//go:embed templates/*.txt templates/*.html
var templatesFS embed.FS

// Message is one rendered email.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Transport delivers a rendered message.
type Transport interface {
	Deliver(ctx context.Context, m Message) error
}

// Options configures Async.
type Options struct {
	Sender        string        // From header
	SubjectPrefix string        // prepended to every subject
	BaseURL       string        // public URL used in links
	Timeout       time.Duration // per-message delivery deadline
}

// Async renders messages synchronously and delivers them on a goroutine.
type Async struct {
	transport Transport
	opts      Options
	log       *zap.Logger
	text      *template.Template
	html      *htmltemplate.Template
	wg        sync.WaitGroup
}

// NewAsync parses the embedded templates.
func NewAsync(t Transport, opts Options, log *zap.Logger) (*Async, error) {
	text, err := template.ParseFS(templatesFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	html, err := htmltemplate.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Async{transport: t, opts: opts, log: log, text: text, html: html}, nil
}

// Render builds the message for template name.
func (a *Async) Render(to, subject, name string, data map[string]any) (Message, error) {
	vars := map[string]any{"BaseURL": a.opts.BaseURL}
	for k, v := range data {
		vars[k] = v
	}
	var text, html bytes.Buffer
	if err := a.text.ExecuteTemplate(&text, name+".txt", vars); err != nil {
		return Message{}, fmt.Errorf("render %s.txt: %w", name, err)
	}
	if err := a.html.ExecuteTemplate(&html, name+".html", vars); err != nil {
		return Message{}, fmt.Errorf("render %s.html: %w", name, err)
	}
	return Message{
		From:    a.opts.Sender,
		To:      to,
		Subject: a.opts.SubjectPrefix + " " + subject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

// Send renders and queues a message. Failures are logged only.
func (a *Async) Send(ctx context.Context, to, subject, name string, data map[string]any) {
	msg, err := a.Render(to, subject, name, data)
	if err != nil {
		a.log.Error("mail render", zap.String("template", name), zap.Error(err))
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		// the request context ends before delivery does
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.Timeout)
		defer cancel()
		if err := a.transport.Deliver(dctx, msg); err != nil {
			a.log.Error("mail delivery",
				zap.String("to", msg.To),
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
			return
		}
		a.log.Debug("mail sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	}()
}

// Close waits for queued deliveries.
func (a *Async) Close() { a.wg.Wait() }

// LogTransport writes messages to the log instead of sending them.
type LogTransport struct{ Log *zap.Logger }

// Deliver implements Transport.
func (t LogTransport) Deliver(_ context.Context, m Message) error {
	t.Log.Info("mail (not sent)",
		zap.String("to", m.To),
		zap.String("subject", m.Subject),
		zap.String("body", m.Text),
	)
	return nil
}
