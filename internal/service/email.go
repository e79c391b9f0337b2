package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type EmailService struct {
	sender    emailSender
	fromEmail string
	isDev     bool
	appURL    string
	appName   string
}

func NewEmailService(apiKey, fromEmail, appURL, appName string, isDev bool) *EmailService {
	s := &EmailService{
		fromEmail: fromEmail,
		isDev:     isDev,
		appURL:    appURL,
		appName:   appName,
	}
	if apiKey != "" && !isDev {
		s.sender = resend.NewClient(apiKey).Emails
	}
	return s
}

// send delivers a plain-text email. In development it only logs.
func (s *EmailService) send(ctx context.Context, kind, to, subject, body string, logArgs ...any) error {
	if s.isDev {
		args := append([]any{"type", kind, "to", to, "subject", subject}, logArgs...)
		slog.Info("email sent (dev mode)", args...)
		return nil
	}

	if s.sender == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	_, err := s.sender.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		return err
	}

	slog.Info("email sent", "type", kind, "to", to)
	return nil
}

func (s *EmailService) SendVerificationEmail(ctx context.Context, email, token, username string) error {
	verifyURL := fmt.Sprintf("%s/auth/verify-email/%s", s.appURL, token)
	subject, body := verifyEmailTemplate(username, verifyURL, s.appName)
	return s.send(ctx, "verify_email", email, subject, body, "url", verifyURL)
}

func (s *EmailService) SendMagicLinkEmail(ctx context.Context, email, token string) error {
	magicURL := fmt.Sprintf("%s/auth/magic-link/%s", s.appURL, token)
	subject, body := magicLinkEmailTemplate(magicURL, s.appName)
	return s.send(ctx, "magic_link", email, subject, body, "url", magicURL)
}

func (s *EmailService) SendWelcomeEmail(ctx context.Context, email, username string) error {
	dashboardURL := fmt.Sprintf("%s/dashboard", s.appURL)
	subject, body := welcomeEmailTemplate(username, dashboardURL, s.appName)
	return s.send(ctx, "welcome", email, subject, body)
}

func (s *EmailService) SendAccountDeletedEmail(ctx context.Context, email, username string) error {
	subject, body := accountDeletedEmailTemplate(username, s.appName)
	return s.send(ctx, "account_deleted", email, subject, body)
}

func (s *EmailService) SendPartnerRequestEmail(ctx context.Context, email, requesterName string, message *string) error {
	dashboardURL := fmt.Sprintf("%s/dashboard", s.appURL)
	subject, body := partnerRequestEmailTemplate(requesterName, message, dashboardURL, s.appName)
	return s.send(ctx, "partner_request", email, subject, body)
}

func (s *EmailService) SendPartnerAcceptedEmail(ctx context.Context, email, partnerName string) error {
	dashboardURL := fmt.Sprintf("%s/dashboard", s.appURL)
	subject, body := partnerAcceptedEmailTemplate(partnerName, dashboardURL, s.appName)
	return s.send(ctx, "partner_accepted", email, subject, body)
}
