package tokenauth

import (
	"bytes"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
)

const verificationHTML = `<p>Welcome to {{.AppName}}.</p>
<p>Please confirm your email address by opening the link below. It expires in {{.ExpiresIn}}.</p>
<p><a href="{{.Link}}">Verify email</a></p>
<p>If you did not create an account, ignore this message.</p>`

const verificationText = `Welcome to {{.AppName}}.

Confirm your email address by opening this link (expires in {{.ExpiresIn}}):
{{.Link}}

If you did not create an account, ignore this message.
`

const resetHTML = `<p>A password reset was requested for your {{.AppName}} account.</p>
<p>Open the link below to choose a new password. It expires in {{.ExpiresIn}}.</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>If you did not request this, ignore this message.</p>`

const resetText = `A password reset was requested for your {{.AppName}} account.

Choose a new password here (expires in {{.ExpiresIn}}):
{{.Link}}

If you did not request this, ignore this message.
`

type mailData struct {
	AppName   string
	Link      string
	ExpiresIn string
}

type mailTemplate struct {
	subject string
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// mailer renders verification and reset emails.
type mailer struct {
	cfg          NotifyConfig
	verification mailTemplate
	reset        mailTemplate
}

func newMailer(cfg NotifyConfig) (*mailer, error) {
	if cfg.AppName == "" {
		cfg.AppName = "tokenauth"
	}
	m := &mailer{cfg: cfg}

	var err error
	if m.verification, err = parseMailTemplate("verification", "Verify your email", verificationHTML, verificationText); err != nil {
		return nil, err
	}
	if m.reset, err = parseMailTemplate("reset", "Reset your password", resetHTML, resetText); err != nil {
		return nil, err
	}
	return m, nil
}

func parseMailTemplate(name, subject, html, text string) (mailTemplate, error) {
	h, err := htmltemplate.New(name).Parse(html)
	if err != nil {
		return mailTemplate{}, err
	}
	t, err := texttemplate.New(name).Parse(text)
	if err != nil {
		return mailTemplate{}, err
	}
	return mailTemplate{subject: subject, html: h, text: t}, nil
}

func (m *mailer) link(path, token string) string {
	base := strings.TrimRight(m.cfg.BaseURL, "/")
	return base + path + "?token=" + url.QueryEscape(token)
}

func (m *mailer) render(to string, tpl mailTemplate, data mailData) (Message, error) {
	var html, text bytes.Buffer
	if err := tpl.html.Execute(&html, data); err != nil {
		return Message{}, err
	}
	if err := tpl.text.Execute(&text, data); err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: m.cfg.AppName + ": " + tpl.subject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

func (m *mailer) verificationMessage(to, token, expiresIn string) (Message, error) {
	return m.render(to, m.verification, mailData{
		AppName:   m.cfg.AppName,
		Link:      m.link("/verify-email", token),
		ExpiresIn: expiresIn,
	})
}

func (m *mailer) resetMessage(to, token, expiresIn string) (Message, error) {
	return m.render(to, m.reset, mailData{
		AppName:   m.cfg.AppName,
		Link:      m.link("/reset-password", token),
		ExpiresIn: expiresIn,
	})
}
