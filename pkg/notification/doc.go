// Package notification renders and delivers verification emails.
//
// A NotificationManager holds one template per Kind and hands the rendered
// Message to a Transport:
//   - SMTPTransport sends through an SMTP server (go-mail)
//   - ResendTransport sends through the Resend API
//   - LogTransport writes the message to the log for local development
//
// Built-in templates for verification codes and the welcome email are
// embedded in the binary:
//
//	transport, err := notification.NewSMTPTransport(notification.SMTPConfig{
//		Host: "localhost",
//		Port: 1025,
//		From: "noreply@example.com",
//	})
//	manager, err := notification.NewNotificationManager(transport,
//		notification.WithDefaultTemplates(),
//	)
//	err = manager.Send(ctx, "a@example.com", notification.KindEmailVerification, map[string]string{
//		"Code":             "042517",
//		"Email":            "a@example.com",
//		"ExpiryMinutes":    "10",
//		"VerificationLink": "https://app.example.com/verify-email?code=042517",
//	})
//
// Wrap any Notifier in an AsyncNotifier to move delivery off the request
// path. NoopNotifier and MockNotifier cover tests and disabled delivery.
package notification
