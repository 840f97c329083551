// Package platform provides ATS platform detection and per-platform pacing profiles.
package platform

import (
	"net/url"
	"strings"
	"time"
)

// Platform represents a known job board or ATS platform.
type Platform string

const (
	// PlatformGreenhouse is the Greenhouse ATS platform
	PlatformGreenhouse Platform = "greenhouse"
	// PlatformLever is the Lever ATS platform
	PlatformLever Platform = "lever"
	// PlatformWorkday is the Workday ATS platform
	PlatformWorkday Platform = "workday"
	// PlatformLinkedIn is LinkedIn (Easy Apply)
	PlatformLinkedIn Platform = "linkedin"
	// PlatformIndeed is the Indeed job board
	PlatformIndeed Platform = "indeed"
	// PlatformAshby is the Ashby ATS platform
	PlatformAshby Platform = "ashby"
	// PlatformBreezy is the Breezy HR ATS platform
	PlatformBreezy Platform = "breezy"
	// PlatformSmartRecruiters is the SmartRecruiters ATS platform
	PlatformSmartRecruiters Platform = "smartrecruiters"
	// PlatformDice is the Dice job board
	PlatformDice Platform = "dice"
	// PlatformUnknown is an unrecognized platform
	PlatformUnknown Platform = "unknown"
)

// Detect identifies the platform hosting an application form from its URL.
func Detect(urlStr string) Platform {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return PlatformUnknown
	}

	host := strings.ToLower(parsed.Host)

	switch {
	case strings.Contains(host, "greenhouse.io"):
		return PlatformGreenhouse
	case strings.Contains(host, "lever.co"):
		return PlatformLever
	case strings.Contains(host, "workday.com"),
		strings.Contains(host, "myworkdayjobs.com"):
		return PlatformWorkday
	case strings.Contains(host, "linkedin.com"):
		return PlatformLinkedIn
	case strings.Contains(host, "indeed.com"):
		return PlatformIndeed
	case strings.Contains(host, "ashbyhq.com"):
		return PlatformAshby
	case strings.Contains(host, "breezy.hr"):
		return PlatformBreezy
	case strings.Contains(host, "smartrecruiters.com"):
		return PlatformSmartRecruiters
	case strings.Contains(host, "dice.com"):
		return PlatformDice
	}

	return PlatformUnknown
}

// PacingProfile describes how carefully a platform must be approached.
// DelayMin/DelayMax bound the human-like pause inserted before each attempt;
// Fragile marks platforms known to block automation aggressively.
type PacingProfile struct {
	DelayMin time.Duration
	DelayMax time.Duration
	Fragile  bool
}

var pacingProfiles = map[Platform]PacingProfile{
	PlatformGreenhouse:      {DelayMin: 2 * time.Second, DelayMax: 5 * time.Second},
	PlatformLever:           {DelayMin: 3 * time.Second, DelayMax: 6 * time.Second},
	PlatformWorkday:         {DelayMin: 10 * time.Second, DelayMax: 20 * time.Second, Fragile: true},
	PlatformLinkedIn:        {DelayMin: 60 * time.Second, DelayMax: 180 * time.Second, Fragile: true},
	PlatformIndeed:          {DelayMin: 5 * time.Second, DelayMax: 10 * time.Second},
	PlatformAshby:           {DelayMin: 3 * time.Second, DelayMax: 6 * time.Second},
	PlatformBreezy:          {DelayMin: 3 * time.Second, DelayMax: 6 * time.Second},
	PlatformSmartRecruiters: {DelayMin: 4 * time.Second, DelayMax: 8 * time.Second},
	PlatformDice:            {DelayMin: 4 * time.Second, DelayMax: 10 * time.Second},
}

// defaultProfile is applied to platforms without a dedicated entry.
var defaultProfile = PacingProfile{DelayMin: 4 * time.Second, DelayMax: 12 * time.Second}

// Profile returns the pacing profile for a platform.
func Profile(p Platform) PacingProfile {
	if prof, ok := pacingProfiles[p]; ok {
		return prof
	}
	return defaultProfile
}

// Known reports whether p is a recognized platform identifier.
func Known(p Platform) bool {
	_, ok := pacingProfiles[p]
	return ok
}
