package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
)

// ActivationAlert is the payload of the mail sent when a licence is
// successfully activated.
type ActivationAlert struct {
	Name        string
	Email       string
	Key         string
	ExpiresAt   string // formatted date or "Never"
	ProductName string
	ManageURL   string
}

// ExpirationWarning is the payload of the mail sent when an active licence
// approaches its expiry date.
type ExpirationWarning struct {
	Name      string
	Email     string
	Key       string
	ExpiresAt string
	DaysLeft  int
	RenewURL  string
}

type Mailer interface {
	SendActivationAlert(ctx context.Context, alert ActivationAlert) error
	SendExpirationWarning(ctx context.Context, warning ExpirationWarning) error
}

var activationAlertTemplate = template.Must(template.New("activation_alert").Parse(`<html>
<body>
<h2>License Activated</h2>
<p>Hello {{.Name}},</p>
<p>Your license <strong>{{.Key}}</strong> has been successfully activated.</p>
<ul>
<li>License Key: {{.Key}}</li>
<li>Expires At: {{.ExpiresAt}}</li>
<li>Product: {{.ProductName}}</li>
</ul>
<p><a href="{{.ManageURL}}">Manage License</a></p>
</body>
</html>`))

var expirationWarningTemplate = template.Must(template.New("expiration_warning").Parse(`<html>
<body>
<h2>Action Required: License Expiring Soon</h2>
<p>Hello {{.Name}},</p>
<p>Your license expires in {{.DaysLeft}} days.</p>
<p>This is a reminder that your license <strong>{{.Key}}</strong> is set to expire on <strong>{{.ExpiresAt}}</strong>.</p>
<p>Please renew your license to avoid any service interruption.</p>
<p><a href="{{.RenewURL}}">Renew Now</a></p>
</body>
</html>`))

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) SendActivationAlert(ctx context.Context, alert ActivationAlert) error {
	body, err := renderTemplate(activationAlertTemplate, alert)
	if err != nil {
		return err
	}
	return m.send(alert.Email, "License Activated Successfully", body)
}

func (m *SMTPMailer) SendExpirationWarning(ctx context.Context, warning ExpirationWarning) error {
	body, err := renderTemplate(expirationWarningTemplate, warning)
	if err != nil {
		return err
	}
	return m.send(warning.Email, "License Expiration Warning", body)
}

func (m *SMTPMailer) send(to, subject, htmlBody string) error {
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n%s\r\n%s", to, subject, mime, htmlBody))

	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg)
}

func renderTemplate(t *template.Template, data interface{}) (string, error) {
	var body bytes.Buffer
	if err := t.Execute(&body, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return body.String(), nil
}
