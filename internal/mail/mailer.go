// Package mail delivers OTP verification codes over SMTP.
//
// Delivery is decoupled from challenge persistence: a send failure is
// reported to the caller but the issued code stays valid.
package mail

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
)

// Mailer sends a verification code to an address. Implementations report
// delivery failure with an error; they never panic.
type Mailer interface {
	SendCode(to, code string) error
}

// SMTPConfig holds the transport settings.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// SMTPMailer sends codes through a real SMTP server. When no user is
// configured it short-circuits to success, matching the debug behavior
// of the original deployment.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer builds a mailer from cfg. An empty From falls back to User.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &SMTPMailer{cfg: cfg}
}

// SendCode delivers the validation code mail. Port 465 uses implicit TLS,
// anything else negotiates STARTTLS.
func (m *SMTPMailer) SendCode(to, code string) error {
	if m.cfg.User == "" {
		return nil
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	subject := fmt.Sprintf("Código de Validación: %s - Mitie", code)
	body := fmt.Sprintf("Tu código de validación para la entrega de dispositivo es: %s", code)
	msg := []byte("From: " + m.cfg.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" + body + "\r\n")

	client, err := m.dial(addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}

func (m *SMTPMailer) dial(addr string) (*smtp.Client, error) {
	tlsCfg := &tls.Config{ServerName: m.cfg.Host}

	if m.cfg.Port == 465 {
		conn, err := tls.Dial("tcp", addr, tlsCfg)
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn, m.cfg.Host)
	}

	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, err
	}
	if err := client.StartTLS(tlsCfg); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
