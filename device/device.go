// Package device derives a descriptive [Info] from a User-Agent header.
//
// The result is informational only. It is shown in session listings and
// activity entries and is never used for authorization decisions.
package device

import "strings"

const (
	Unknown = "Unknown"

	ClassDesktop = "Desktop"
	ClassMobile  = "Mobile"
	ClassTablet  = "Tablet"
)

// Info describes the client that created a session.
type Info struct {
	UserAgent string `json:"userAgent"`
	Browser   string `json:"browser"`
	OS        string `json:"os"`
	Device    string `json:"device"`
	IsMobile  bool   `json:"isMobile"`
}

type rule struct {
	needles []string
	name    string
}

// Rules are evaluated in order and the first match wins. Chromium-based
// browsers advertise "chrome", so Edge and Opera builds that do are
// reported as Chrome.
var (
	browserRules = []rule{
		{[]string{"chrome"}, "Chrome"},
		{[]string{"firefox"}, "Firefox"},
		{[]string{"safari"}, "Safari"},
		{[]string{"edge"}, "Edge"},
		{[]string{"opera"}, "Opera"},
	}
	osRules = []rule{
		{[]string{"windows"}, "Windows"},
		{[]string{"mac"}, "macOS"},
		{[]string{"linux"}, "Linux"},
		{[]string{"android"}, "Android"},
		{[]string{"ios", "iphone", "ipad"}, "iOS"},
	}
	classRules = []rule{
		{[]string{"mobile"}, ClassMobile},
		{[]string{"tablet", "ipad"}, ClassTablet},
	}
)

// Parse classifies userAgent. An empty header yields Unknown browser and OS
// on a Desktop class.
func Parse(userAgent string) Info {
	ua := strings.ToLower(userAgent)
	class := match(ua, classRules, ClassDesktop)
	return Info{
		UserAgent: userAgent,
		Browser:   match(ua, browserRules, Unknown),
		OS:        match(ua, osRules, Unknown),
		Device:    class,
		IsMobile:  class == ClassMobile || class == ClassTablet,
	}
}

// String renders "Browser on OS", the form used in session listings.
func (i Info) String() string {
	return i.Browser + " on " + i.OS
}

func match(ua string, rules []rule, fallback string) string {
	for _, r := range rules {
		for _, n := range r.needles {
			if strings.Contains(ua, n) {
				return r.name
			}
		}
	}
	return fallback
}
