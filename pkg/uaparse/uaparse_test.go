// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package uaparse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	chromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	safariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	firefoxMac    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14.2; rv:120.0) Gecko/20100101 Firefox/120.0"
)

func TestParseOS(t *testing.T) {
	require := require.New(t)

	require.Equal("Windows", ParseOS(chromeWindows))
	require.Equal("iOS", ParseOS(safariIPhone))
	require.Equal("Mac", ParseOS(firefoxMac))
	require.Equal(Others, ParseOS(""))
	require.Equal(Others, ParseOS("curl/8.0"))
}

func TestParseBrowser(t *testing.T) {
	require := require.New(t)

	require.Equal("Chrome", ParseBrowser(chromeWindows))
	require.Equal("Safari", ParseBrowser(safariIPhone))
	require.Equal("Firefox", ParseBrowser(firefoxMac))
	require.Equal(Others, ParseBrowser(""))
}

func TestParseDevice(t *testing.T) {
	require := require.New(t)

	require.Equal("Desktop", ParseDevice(chromeWindows, ""))
	require.Equal("Mobile", ParseDevice(safariIPhone, ""))
	require.Equal("Desktop", ParseDevice("", ""))

	// Explicit override wins over the heuristic.
	require.Equal("Tablet", ParseDevice(safariIPhone, "Tablet"))
}

func TestParseLanguage(t *testing.T) {
	require := require.New(t)

	require.Equal("en-US", ParseLanguage("en-US,en;q=0.9,de;q=0.8"))
	require.Equal("de", ParseLanguage("de;q=0.7"))
	require.Equal(Others, ParseLanguage(""))
	require.Equal(Others, ParseLanguage("   "))
}

func TestExtractHost(t *testing.T) {
	require := require.New(t)

	require.Equal("news.example", ExtractHost("News.Example", "", ""))
	require.Equal("news.example", ExtractHost("https://News.Example/section", "", ""))
	require.Equal("origin.example", ExtractHost("", "https://origin.example", "https://ref.example/page"))
	require.Equal("ref.example", ExtractHost("", "", "https://ref.example/page?q=1"))
	require.Equal("", ExtractHost("", "", ""))
}
