// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package uaparse infers coarse targeting attributes from request headers.
// The heuristics only need to distinguish the handful of buckets the
// targeting data actually stores, so a full UA database is overkill.
package uaparse

import (
	"net/url"
	"strings"
)

// Others is the bucket for anything the heuristics cannot classify.
const Others = "Others"

// ParseOS maps a User-Agent to a platform bucket.
func ParseOS(userAgent string) string {
	if userAgent == "" {
		return Others
	}
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "macintosh"), strings.Contains(ua, "mac os"):
		return "Mac"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ios"):
		return "iOS"
	case containsAny(ua, "smarttv", "hbbtv", "tizen", "webos"):
		return "TV"
	}
	return Others
}

// ParseBrowser maps a User-Agent to a browser bucket.
func ParseBrowser(userAgent string) string {
	if userAgent == "" {
		return Others
	}
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "edg"):
		return "Edge"
	case strings.Contains(ua, "chrome"):
		return "Chrome"
	case strings.Contains(ua, "firefox"):
		return "Firefox"
	case strings.Contains(ua, "safari"):
		return "Safari"
	}
	return Others
}

// ParseDevice prefers an explicit override header, then falls back to the
// User-Agent heuristic. Tablets are classed as Mobile.
func ParseDevice(userAgent, override string) string {
	if o := strings.TrimSpace(override); o != "" {
		return o
	}
	if userAgent == "" {
		return "Desktop"
	}
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "android"):
		return "Mobile"
	case containsAny(ua, "smarttv", "hbbtv", "tizen", "webos"):
		return "TV"
	}
	return "Desktop"
}

// ParseLanguage takes the first token of an Accept-Language header.
func ParseLanguage(acceptLanguage string) string {
	if strings.TrimSpace(acceptLanguage) == "" {
		return Others
	}
	first := strings.TrimSpace(strings.Split(acceptLanguage, ",")[0])
	if i := strings.IndexByte(first, ';'); i >= 0 {
		first = first[:i]
	}
	if first == "" {
		return Others
	}
	return first
}

// ExtractHost resolves the request's domain from the X-Domain, Origin and
// Referer headers, in that order, lowercased. Returns "" when none yield a
// host.
func ExtractHost(xDomain, origin, referer string) string {
	if h := firstHost(xDomain); h != "" {
		return h
	}
	if h := urlHost(origin); h != "" {
		return h
	}
	return urlHost(referer)
}

func firstHost(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return ""
	}
	if strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://") {
		return urlHost(t)
	}
	if i := strings.IndexByte(t, '/'); i > 0 {
		return t[:i]
	}
	return t
}

func urlHost(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
