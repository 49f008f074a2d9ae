package acquire

import (
	"context"
	"fmt"
	"strings"
)

type profile struct {
	Name  string
	Bio   string
	Posts []string
}

// sampleProfiles back simulated lookups when no platform credentials are configured
var sampleProfiles = map[string]profile{
	"santhosh_dev": {
		Name: "Santhosh Japala",
		Bio:  "Full-stack dev at Tech Corp. Contact: santhosh.j@gmail.com | +91 98765 43210. Based in Bangalore.",
		Posts: []string{
			"Just finished a new project! Check the repo at github.com/santhosh-j",
			"My office is located near MG Road. Drop by if you're in the city!",
			"Happy to announce my new email: santhosh.work@techcorp.io",
		},
	},
}

func defaultProfile(handle string) profile {
	return profile{
		Name:  "User " + handle,
		Bio:   fmt.Sprintf("No official bio found for @%s. Maybe check dev@example.com for more info.", handle),
		Posts: []string{fmt.Sprintf("Sample post from @%s.", handle), "Contact: +1 555-0199."},
	}
}

// NormalizeHandle strips whitespace and leading @ from a social handle
func NormalizeHandle(handle string) string {
	return strings.TrimLeft(strings.TrimSpace(handle), "@")
}

func (a *Aggregator) simulated() bool {
	return a.social.TwitterBearerToken == "" && a.social.InstagramToken == ""
}

// directProfile looks the handle up on the platform itself
func (a *Aggregator) directProfile(ctx context.Context, platform, handle string) SourceResult {
	source := SourceDirectPrefix + platform

	if !a.simulated() {
		var msg string
		switch platform {
		case "twitter":
			msg = "Twitter API keys required for live scan."
		case "instagram":
			msg = "Instagram API keys required for live scan."
		default:
			msg = fmt.Sprintf("Platform %s not supported for direct API scan", platform)
		}
		return SourceResult{Source: source, Platform: platform, Handle: "@" + handle, Error: msg}
	}

	p, ok := sampleProfiles[strings.ToLower(handle)]
	if !ok {
		p = defaultProfile(handle)
	}
	text := fmt.Sprintf("Profile Name: %s\nBio: %s\n", p.Name, p.Bio) + strings.Join(p.Posts, "\n")

	result := a.analyze(ctx, source, fmt.Sprintf("https://%s.com/%s", platform, handle),
		fmt.Sprintf("[PROFILE] %s (@%s)", p.Name, handle), text)
	result.Platform = platform
	result.Handle = "@" + handle
	result.Simulated = true
	return result
}

func socialDiscoveryQuery(handle string) string {
	return fmt.Sprintf(`"%s" OR "@%s" site:linkedin.com OR site:github.com OR site:facebook.com OR site:instagram.com OR site:twitter.com`,
		handle, handle)
}

func emailDiscoveryQuery(email string) string {
	return fmt.Sprintf(`"%s" OR "email: %s" site:linkedin.com OR site:github.com OR site:facebook.com OR site:instagram.com OR site:pastebin.com OR site:twitter.com OR site:x.com`,
		email, email)
}
