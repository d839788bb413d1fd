package services

import (
	"context"
	"fmt"
	"log/slog"

	pkglogger "github.com/averycrane/gatehouse/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailSender is the mail transport contract. Every send is fire-and-log from
// the caller's perspective: delivery failure never rolls back the state change
// that triggered it.
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
	SendEmailChangeEmail(ctx context.Context, email, token string) error
	SendInvitationEmail(ctx context.Context, email, orgName, token string) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress, baseURL string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      logger,
	}, nil
}

func (s *AWSSESEmailService) SendVerificationEmail(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, token)

	textBody := fmt.Sprintf(`Verify Your Email Address

Welcome! To complete your registration, please verify your email address by opening the link below:

%s

This link will expire in 24 hours.

If you didn't sign up for this account, you can ignore this email. Your email address will not be verified.
`, link)

	htmlBody := fmt.Sprintf(`%s
	<h1>Verify Your Email Address</h1>
	<p>Welcome! To complete your registration, please verify your email address:</p>
	<p><a href="%s" class="button">Verify Email Address</a></p>
	<p>Or copy and paste this link in your browser:<br><code>%s</code></p>
	<p><strong>This link will expire in 24 hours.</strong></p>
	<p>If you didn't sign up for this account, you can ignore this email.</p>
%s`, emailHeader, link, link, emailFooter)

	return s.send(ctx, email, "Verify your email address", textBody, htmlBody)
}

func (s *AWSSESEmailService) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)

	textBody := fmt.Sprintf(`Reset Your Password

A password reset was requested for your account. Open the link below to choose a new password:

%s

This link will expire in 2 hours.

If you didn't request a reset, you can ignore this email. Your password will not change.
`, link)

	htmlBody := fmt.Sprintf(`%s
	<h1>Reset Your Password</h1>
	<p>A password reset was requested for your account.</p>
	<p><a href="%s" class="button">Choose a New Password</a></p>
	<p>Or copy and paste this link in your browser:<br><code>%s</code></p>
	<p><strong>This link will expire in 2 hours.</strong></p>
	<p>If you didn't request a reset, you can ignore this email. Your password will not change.</p>
%s`, emailHeader, link, link, emailFooter)

	return s.send(ctx, email, "Reset your password", textBody, htmlBody)
}

func (s *AWSSESEmailService) SendEmailChangeEmail(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/confirm-email-change?token=%s", s.baseURL, token)

	textBody := fmt.Sprintf(`Confirm Your New Email Address

A request was made to move your account to this email address. Open the link below to confirm:

%s

This link will expire in 2 hours.

If you didn't request this change, you can ignore this email.
`, link)

	htmlBody := fmt.Sprintf(`%s
	<h1>Confirm Your New Email Address</h1>
	<p>A request was made to move your account to this email address.</p>
	<p><a href="%s" class="button">Confirm Email Change</a></p>
	<p>Or copy and paste this link in your browser:<br><code>%s</code></p>
	<p><strong>This link will expire in 2 hours.</strong></p>
	<p>If you didn't request this change, you can ignore this email.</p>
%s`, emailHeader, link, link, emailFooter)

	return s.send(ctx, email, "Confirm your new email address", textBody, htmlBody)
}

func (s *AWSSESEmailService) SendInvitationEmail(ctx context.Context, email, orgName, token string) error {
	link := fmt.Sprintf("%s/accept-invitation?token=%s", s.baseURL, token)

	textBody := fmt.Sprintf(`You've Been Invited

You have been invited to join %s. Open the link below to accept:

%s

This invitation will expire in 7 days.

If you weren't expecting this invitation, you can ignore this email.
`, orgName, link)

	htmlBody := fmt.Sprintf(`%s
	<h1>You've Been Invited</h1>
	<p>You have been invited to join <strong>%s</strong>.</p>
	<p><a href="%s" class="button">Accept Invitation</a></p>
	<p>Or copy and paste this link in your browser:<br><code>%s</code></p>
	<p><strong>This invitation will expire in 7 days.</strong></p>
	<p>If you weren't expecting this invitation, you can ignore this email.</p>
%s`, emailHeader, orgName, link, link, emailFooter)

	return s.send(ctx, email, fmt.Sprintf("Invitation to join %s", orgName), textBody, htmlBody)
}

func (s *AWSSESEmailService) send(ctx context.Context, email, subject, textBody, htmlBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("subject", subject),
		slog.String("message_id", *result.MessageId))

	return nil
}

const emailHeader = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">`

const emailFooter = `        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>`
