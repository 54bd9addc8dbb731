package campus

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"kite-agent/lib/campus/useragent"
)

// Availability is what a connectivity probe concluded about the
// network the agent is sitting on.
type Availability int

const (
	// NoConnection means the test page could not be fetched at all.
	NoConnection Availability = iota
	// LoginNeeded means something intercepted the probe, which on
	// campus usually means the wifi portal login expired.
	LoginNeeded
	// Connected means the open internet answered as expected.
	Connected
)

func (a Availability) String() string {
	switch a {
	case Connected:
		return "connected"
	case LoginNeeded:
		return "login needed"
	default:
		return "no connection"
	}
}

type testPage struct {
	url      string
	expected string
}

// public always-on pages with a known body, so a captive portal's
// rewrite is detectable
var testPages = []testPage{
	{"http://www.msftconnecttest.com/connecttest.txt", "Microsoft Connect Test"},
	{"http://captive.apple.com/hotspot-detect.html", "Success"},
	{"http://detectportal.firefox.com/", "success"},
}

var probeClient = resty.New().SetTimeout(time.Second * 5)

// CheckAvailability fetches a random test page and classifies the
// answer by comparing the body against what the real page serves.
func CheckAvailability(ctx context.Context) Availability {
	page := testPages[rand.Intn(len(testPages))]

	res, err := probeClient.R().
		SetContext(ctx).
		SetHeader("User-Agent", useragent.Random()).
		Get(page.url)
	if err != nil {
		return NoConnection
	}
	if res.IsSuccess() && strings.Contains(string(res.Body()), page.expected) {
		return Connected
	}
	return LoginNeeded
}
