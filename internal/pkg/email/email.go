package email

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EmailService defines the interface for email operations
type EmailService interface {
	SendOTPEmail(toEmail, toName, code string, ttl time.Duration) error
}

// SMTPConfig holds configuration for SMTP server
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
	// UseTLS dials with implicit TLS (port 465). Otherwise the connection is
	// upgraded with STARTTLS when the server offers it.
	UseTLS bool
}

// EmailServiceImpl implements EmailService
type EmailServiceImpl struct {
	config SMTPConfig
	logger zerolog.Logger
}

// NewEmailService creates a new EmailService
func NewEmailService(config SMTPConfig, logger zerolog.Logger) EmailService {
	if !config.UseTLS && config.Port == 465 {
		config.UseTLS = true
	}
	return &EmailServiceImpl{
		config: config,
		logger: logger,
	}
}

// Configured reports whether SMTP credentials are present.
func (s *EmailServiceImpl) Configured() bool {
	return s.config.Username != "" && s.config.Password != ""
}

// SendOTPEmail sends a password reset code
func (s *EmailServiceImpl) SendOTPEmail(toEmail, toName, code string, ttl time.Duration) error {
	// Without credentials, log the code instead (development only)
	if !s.Configured() {
		s.logger.Warn().
			Str("toEmail", toEmail).
			Str("otp", code).
			Msg("SMTP credentials not configured - OTP email not sent. Use the code above for testing.")
		return nil
	}

	subject := "Password Reset OTP"
	body := otpBody(toName, code, ttl, time.Now().UTC())

	return s.sendTextEmail(toEmail, subject, body)
}

func otpBody(toName, code string, ttl time.Duration, requestedAt time.Time) string {
	var b strings.Builder
	if toName != "" {
		fmt.Fprintf(&b, "Hello %s,\r\n\r\n", toName)
	}
	fmt.Fprintf(&b, "Your OTP is: %s\r\n", code)
	fmt.Fprintf(&b, "This OTP will expire in %d minutes.\r\n", int(ttl.Minutes()))
	fmt.Fprintf(&b, "Requested at %s.\r\n", requestedAt.Format(time.RFC3339))
	return b.String()
}

func (s *EmailServiceImpl) fromEmail() string {
	if s.config.FromEmail != "" {
		return s.config.FromEmail
	}
	return s.config.Username
}

// buildMessage renders headers in a fixed order followed by the body.
func (s *EmailServiceImpl) buildMessage(toEmail, subject, body string) []byte {
	headers := [][2]string{
		{"From", fmt.Sprintf("%s <%s>", s.config.FromName, s.fromEmail())},
		{"To", toEmail},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
	}

	var b strings.Builder
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h[0], h[1])
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// sendTextEmail sends a plain text email
func (s *EmailServiceImpl) sendTextEmail(toEmail, subject, body string) error {
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	message := s.buildMessage(toEmail, subject, body)
	serverAddress := s.config.Host + ":" + strconv.Itoa(s.config.Port)

	if !s.config.UseTLS {
		// SendMail upgrades with STARTTLS when offered
		if err := smtp.SendMail(serverAddress, auth, s.fromEmail(), []string{toEmail}, message); err != nil {
			s.logger.Error().Err(err).Str("server", serverAddress).Msg("Failed to send email")
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	}

	conn, err := tls.Dial("tcp", serverAddress, &tls.Config{ServerName: s.config.Host})
	if err != nil {
		s.logger.Error().Err(err).Str("server", serverAddress).Msg("Failed to connect to SMTP server")
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create SMTP client")
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Quit()

	if err = client.Auth(auth); err != nil {
		s.logger.Error().Err(err).Msg("SMTP authentication failed")
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err = client.Mail(s.fromEmail()); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err = client.Rcpt(toEmail); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err = w.Write(message); err != nil {
		return fmt.Errorf("failed to write email message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return nil
}
