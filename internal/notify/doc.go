// Package notify delivers run summaries to slack, teams or plain http
// webhooks. Webhook URLs are read from environment variables named in the
// config. Failed runs are always delivered, passing runs only with
// notify.on_success.
package notify
