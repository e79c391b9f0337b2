package service

import "fmt"

func verifyEmailTemplate(name, verifyURL, appName string) (string, string) {
	subject := fmt.Sprintf("Verify your email for %s", appName)
	body := fmt.Sprintf(`Hi %s,

Confirm your email address to start posting daily goals:
%s

This link expires in 24 hours.

If you didn't sign up, you can ignore this email.

Best,
The %s Team`, name, verifyURL, appName)

	return subject, body
}

func magicLinkEmailTemplate(magicURL, appName string) (string, string) {
	subject := fmt.Sprintf("Sign in to %s", appName)
	body := fmt.Sprintf(`Click this link to sign in to your account:
%s

This link expires in 10 minutes and can only be used once.

If you didn't request this, ignore this email.

Best,
The %s Team`, magicURL, appName)

	return subject, body
}

func welcomeEmailTemplate(name, dashboardURL, appName string) (string, string) {
	subject := fmt.Sprintf("Welcome to %s!", appName)
	body := fmt.Sprintf(`Hi %s,

Your email is verified. Post today's goal and find someone to keep you honest:
%s

Best,
The %s Team`, name, dashboardURL, appName)

	return subject, body
}

func accountDeletedEmailTemplate(name, appName string) (string, string) {
	subject := fmt.Sprintf("Your %s account has been deleted", appName)
	body := fmt.Sprintf(`Hi %s,

Your account has been permanently deleted from %s.

Your goals, partnerships, messages and uploaded files have been removed.

If you change your mind, you're welcome to create a new account anytime.

Best,
The %s Team`, name, appName, appName)

	return subject, body
}

func partnerRequestEmailTemplate(requester string, message *string, dashboardURL, appName string) (string, string) {
	subject := fmt.Sprintf("%s wants to be your accountability partner", requester)

	note := ""
	if message != nil && *message != "" {
		note = fmt.Sprintf("\nThey wrote:\n\n  %s\n", *message)
	}

	body := fmt.Sprintf(`%s sent you a partnership request on %s.
%s
Accept or decline it from your dashboard:
%s

Best,
The %s Team`, requester, appName, note, dashboardURL, appName)

	return subject, body
}

func partnerAcceptedEmailTemplate(partner, dashboardURL, appName string) (string, string) {
	subject := fmt.Sprintf("%s accepted your partnership request", partner)
	body := fmt.Sprintf(`Good news: %s accepted your request. Your conversation is open.

Say hello:
%s

Best,
The %s Team`, partner, dashboardURL, appName)

	return subject, body
}
