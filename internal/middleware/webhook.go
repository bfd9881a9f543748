package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/thaihoc1310/streamvod/pkg/response"
)

// WebhookSecretHeader carries the shared secret on notification webhooks.
const WebhookSecretHeader = "X-Webhook-Secret"

// SharedSecret rejects requests whose WebhookSecretHeader does not match
// secret. An empty secret disables the check.
func SharedSecret(secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		got := []byte(c.GetHeader(WebhookSecretHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			response.Unauthorized(c, "invalid webhook secret")
			c.Abort()
			return
		}
		c.Next()
	}
}
