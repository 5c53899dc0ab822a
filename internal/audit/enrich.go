package audit

import (
	"strings"

	"github.com/mssola/useragent"
)

// enrich fills derived fields: category from action, severity, and browser/OS
// parsed from the user agent.
func enrich(event *Event) {
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}
	if event.UserAgent == "" || event.Browser != "" {
		return
	}
	ua := useragent.New(event.UserAgent)
	name, version := ua.Browser()
	if name != "" {
		event.Browser = strings.TrimSpace(name + " " + majorVersion(version))
	}
	event.OS = ua.OS()
	event.Bot = ua.Bot()
}

func majorVersion(version string) string {
	if i := strings.IndexByte(version, '.'); i > 0 {
		return version[:i]
	}
	return version
}
