package timezone

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

var currentLocation = time.UTC

// Initialize sets the timezone used for attendance dates. The TZ environment
// variable overrides the configured name; both fall back to UTC.
func Initialize(configured string) {
	tzName := configured
	if envTZ := os.Getenv("TZ"); envTZ != "" {
		tzName = envTZ
	}
	if tzName == "" {
		tzName = "UTC"
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Warnf("Failed to load timezone %s: %v. Falling back to UTC.", tzName, err)
		currentLocation = time.UTC
		return
	}

	log.Infof("Timezone initialized to %s", tzName)
	currentLocation = loc
}

// Now returns the current time in the configured timezone.
func Now() time.Time {
	return time.Now().In(currentLocation)
}

// DateOf formats a timestamp as the attendance date (YYYY-MM-DD) in the
// configured timezone.
func DateOf(t time.Time) string {
	return t.In(currentLocation).Format("2006-01-02")
}

// Today returns today's attendance date string.
func Today() string {
	return DateOf(time.Now())
}
