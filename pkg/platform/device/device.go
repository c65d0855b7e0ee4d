// Package device summarizes client user agents for storage next to the
// records they produced.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

const unknownDevice = "Unknown Device"

// ParseUserAgent returns "<browser> on <platform>", or "Unknown Device" for
// an empty header.
func ParseUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return unknownDevice
	}
	ua := useragent.New(raw)

	browser, _ := ua.Browser()
	if ua.Bot() {
		browser = "Bot " + browser
	}
	if browser = strings.TrimSpace(browser); browser == "" {
		browser = "Unknown Browser"
	}

	platform := ua.OS()
	if ua.Mobile() && ua.Platform() != "" {
		platform = ua.Platform()
	}
	if platform = strings.TrimSpace(platform); platform == "" {
		platform = "Unknown OS"
	}
	return browser + " on " + platform
}
