package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetRealIP resolves the address of the caller behind our reverse proxies.
// X-Real-IP wins when it names a routable address, then the leftmost public
// hop of X-Forwarded-For; loopback and RFC 1918 hops are skipped because they
// name our own infrastructure, not the client.
func GetRealIP(c *gin.Context) string {
	if ip := publicIP(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}

	hops := strings.Split(c.GetHeader("X-Forwarded-For"), ",")
	for _, hop := range hops {
		if ip := publicIP(hop); ip != "" {
			return ip
		}
	}
	// Every forwarded hop was internal; the first one still identifies the
	// caller inside the network.
	if ip := net.ParseIP(strings.TrimSpace(hops[0])); ip != nil {
		return ip.String()
	}

	return c.ClientIP()
}

// publicIP returns the trimmed address when it parses as a routable public
// IP, or "" otherwise.
func publicIP(raw string) string {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil || ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() {
		return ""
	}
	return ip.String()
}

// GetUserAgent returns the User-Agent header, or "Unknown" when absent.
func GetUserAgent(c *gin.Context) string {
	if ua := c.Request.UserAgent(); ua != "" {
		return ua
	}
	return "Unknown"
}
