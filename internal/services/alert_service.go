package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/lendfast/drawbridge/internal/limiter"
)

// AWSSESAlertService sends lockout security alerts using AWS SES. Alerts are
// best-effort: callers log delivery failures and move on.
type AWSSESAlertService struct {
	sesClient   *ses.Client
	fromAddress string
	supportURL  string
	logger      *slog.Logger
}

// NewAWSSESAlertService creates a new AWS SES alert service
func NewAWSSESAlertService(region, fromAddress, supportURL string, logger *slog.Logger) (*AWSSESAlertService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESAlertService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		supportURL:  supportURL,
		logger:      logger,
	}, nil
}

// SendLockoutAlert notifies an account holder that repeated failed attempts
// locked the action, and for how long.
func (s *AWSSESAlertService) SendLockoutAlert(ctx context.Context, email, actionClass string, retryAfter time.Duration) error {
	wait := limiter.FormatRemaining(retryAfter)
	actionLabel := humanActionLabel(actionClass)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Security Alert</h1>
        </div>
        <div class="content">
            <p>We noticed several failed %s attempts on your account.</p>
            <div class="warning">
                <strong>⚠️ The action is temporarily locked.</strong> Please wait %s before trying again.
            </div>
            <p><strong>Was this you?</strong><br>
            If you were trying to sign in, simply wait and try again. No further action is needed.</p>
            <p><strong>Wasn't you?</strong><br>
            Someone may be trying to access your account. We recommend resetting your password once the lock expires, and contacting support if the attempts continue:<br>
            <code>%s</code></p>
        </div>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, actionLabel, wait, s.supportURL)

	textBody := fmt.Sprintf(`Security Alert

We noticed several failed %s attempts on your account.

⚠️  The action is temporarily locked. Please wait %s before trying again.

Was this you?
If you were trying to sign in, simply wait and try again. No further action is needed.

Wasn't you?
Someone may be trying to access your account. We recommend resetting your password once the lock expires, and contacting support if the attempts continue:
%s

This is an automated message. Please do not reply to this email.
`, actionLabel, wait, s.supportURL)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Security alert: too many failed attempts"),
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
		s.logger.Error("failed to send lockout alert via SES",
			slog.String("email", email),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("lockout alert sent",
		slog.String("email", email),
		slog.String("message_id", *result.MessageId))

	return nil
}

// humanActionLabel renders an action class for email copy
func humanActionLabel(actionClass string) string {
	switch limiter.Action(actionClass) {
	case limiter.ActionLogin:
		return "sign-in"
	case limiter.ActionSignup:
		return "sign-up"
	case limiter.ActionPasswordReset:
		return "password reset"
	case limiter.ActionMFAVerify, limiter.ActionMFAChallenge:
		return "verification"
	default:
		return "authentication"
	}
}
