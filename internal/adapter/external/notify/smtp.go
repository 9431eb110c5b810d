package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

// SMTPNotifier delivers alerts by email. It speaks STARTTLS on 587 by
// default, implicit TLS for security "ssl", and authenticates with LOGIN
// before falling back to PLAIN (Office365 only accepts LOGIN).
type SMTPNotifier struct {
	config SMTPConfig
	logger *slog.Logger
}

// SMTPConfig holds SMTP delivery configuration
type SMTPConfig struct {
	Host       string
	Port       int
	Security   string // tls, ssl, none
	FromEmail  string
	Username   string
	Password   string
	Recipients []string
	Timeout    time.Duration
}

// NewSMTPNotifier creates an email notifier. A notifier without a host
// fails every send with a configuration error.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Security == "" {
		cfg.Security = "tls"
	}
	return &SMTPNotifier{
		config: cfg,
		logger: logger,
	}
}

// Name identifies the channel for logs
func (n *SMTPNotifier) Name() string {
	return "smtp"
}

// IsConfigured returns true when a host and sender are set
func (n *SMTPNotifier) IsConfigured() bool {
	return n.config.Host != "" && n.config.FromEmail != ""
}

// SendAlert delivers a single alert as a plain-text email
func (n *SMTPNotifier) SendAlert(ctx context.Context, alert *entity.AlertRecord) error {
	subject := fmt.Sprintf("[%s] %s from %s", strings.ToUpper(alert.Severity), alert.ThreatType, alert.SourceIP)

	var body strings.Builder
	fmt.Fprintf(&body, "Source IP:   %s\r\n", alert.SourceIP)
	fmt.Fprintf(&body, "Server:      %s\r\n", alert.Server)
	fmt.Fprintf(&body, "Threat type: %s\r\n", alert.ThreatType)
	fmt.Fprintf(&body, "Risk score:  %d/100\r\n", alert.RiskScore)
	fmt.Fprintf(&body, "Severity:    %s\r\n", alert.Severity)
	if alert.Count > 1 {
		fmt.Fprintf(&body, "Occurrences: %d\r\n", alert.Count)
	}
	fmt.Fprintf(&body, "First seen:  %s\r\n", alert.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&body, "\r\n%s\r\n", alert.Message)

	return n.send(ctx, subject, body.String())
}

// SendDigest delivers a rendered multi-alert message
func (n *SMTPNotifier) SendDigest(ctx context.Context, subject, body string) error {
	return n.send(ctx, subject, body)
}

func (n *SMTPNotifier) send(ctx context.Context, subject, body string) error {
	if !n.IsConfigured() {
		return fmt.Errorf("SMTP not configured")
	}
	if len(n.config.Recipients) == 0 {
		return fmt.Errorf("no recipients configured")
	}

	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)
	security := strings.ToLower(n.config.Security)
	dialer := net.Dialer{Timeout: n.config.Timeout}

	var conn net.Conn
	var err error
	switch security {
	case "ssl", "implicit":
		// Direct TLS connection (port 465)
		conn, err = tls.DialWithDialer(&dialer, "tcp", addr, &tls.Config{ServerName: n.config.Host})
	default:
		// "tls"/"starttls" negotiate after connect, "none" stays plain
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, n.config.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if security == "tls" || security == "starttls" {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: n.config.Host}); err != nil {
				return fmt.Errorf("STARTTLS failed: %w", err)
			}
		} else if security == "starttls" {
			return fmt.Errorf("server does not support STARTTLS")
		}
	}

	if n.config.Username != "" {
		if err := n.authenticate(client); err != nil {
			return err
		}
	}

	if err := client.Mail(n.config.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range n.config.Recipients {
		if err := client.Rcpt(strings.TrimSpace(rcpt)); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := wc.Write(n.buildMessage(subject, body)); err != nil {
		wc.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	n.logger.Debug("Email sent", "subject", subject, "recipients", len(n.config.Recipients))
	return client.Quit()
}

// authenticate tries LOGIN first, then PLAIN
func (n *SMTPNotifier) authenticate(client *smtp.Client) error {
	ok, authMethods := client.Extension("AUTH")
	if !ok {
		return fmt.Errorf("server does not advertise AUTH")
	}

	var authErr error
	if strings.Contains(authMethods, "LOGIN") {
		if err := client.Auth(loginAuth{n.config.Username, n.config.Password}); err == nil {
			return nil
		} else {
			authErr = err
		}
	}
	if strings.Contains(authMethods, "PLAIN") {
		auth := smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
		if err := client.Auth(auth); err == nil {
			return nil
		} else {
			authErr = err
		}
	}

	if authErr != nil {
		return fmt.Errorf("authentication failed: %w", authErr)
	}
	return fmt.Errorf("no supported authentication method")
}

func (n *SMTPNotifier) buildMessage(subject, body string) []byte {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: SSH Sentinel <%s>\r\n", n.config.FromEmail))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(n.config.Recipients, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}

// loginAuth implements the LOGIN mechanism, which net/smtp lacks
type loginAuth struct {
	username, password string
}

func (a loginAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return "LOGIN", []byte{}, nil
}

func (a loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		switch string(fromServer) {
		case "Username:":
			return []byte(a.username), nil
		case "Password:":
			return []byte(a.password), nil
		default:
			return nil, fmt.Errorf("unknown server challenge: %s", fromServer)
		}
	}
	return nil, nil
}
