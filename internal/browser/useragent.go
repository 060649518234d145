// internal/browser/useragent.go
package browser

import (
	"fmt"
	"math/rand"
)

var (
	desktopPlatforms = map[string][]string{
		"windows": {
			"Windows NT 10.0; Win64; x64",
			"Windows NT 10.0; Win64",
			"Windows NT 10.0",
		},
		"mac": {
			"Macintosh; Intel Mac OS X 10_15_7",
			"Macintosh; Intel Mac OS X 11_6_5",
			"Macintosh; Intel Mac OS X 12_4",
			"Macintosh; Intel Mac OS X 13_3",
		},
		"linux": {
			"X11; Linux x86_64",
			"X11; Ubuntu; Linux x86_64",
			"X11; Fedora; Linux x86_64",
		},
	}
	mobilePlatforms = []string{
		"Linux; Android 13; SM-G998B",
		"Linux; Android 12; Pixel 6 Pro",
		"Linux; Android 11; OnePlus 8T",
		"Linux; Android 10; Mi 10",
		"iPhone; CPU iPhone OS 16_6_1 like Mac OS X",
		"iPhone; CPU iPhone OS 15_4_1 like Mac OS X",
	}
)

// userAgentFamilies lists the browser families RandomUserAgent draws from.
var userAgentFamilies = []string{"chrome", "firefox", "safari", "edge", "mobile"}

// RandomUserAgent builds a plausible desktop or mobile user agent string.
func RandomUserAgent(rng *rand.Rand) string {
	pick := func(s []string) string { return s[rng.Intn(len(s))] }
	anyDesktop := func() string {
		all := make([]string, 0, 10)
		for _, k := range []string{"windows", "mac", "linux"} {
			all = append(all, desktopPlatforms[k]...)
		}
		return pick(all)
	}
	chromeVersion := func() string {
		return fmt.Sprintf("%d.%d.0.0", 100+rng.Intn(25), rng.Intn(5))
	}

	switch pick(userAgentFamilies) {
	case "firefox":
		v := fmt.Sprintf("%d.0", 90+rng.Intn(30))
		return fmt.Sprintf("Mozilla/5.0 (%s; rv:%s) Gecko/20100101 Firefox/%s", anyDesktop(), v, v)
	case "safari":
		v := fmt.Sprintf("%d.%d", 14+rng.Intn(3), rng.Intn(6))
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%s Safari/605.1.15",
			pick(desktopPlatforms["mac"]), v)
	case "edge":
		major := 100 + rng.Intn(25)
		v := fmt.Sprintf("%d.%d.%d.%d", major, rng.Intn(5), 1000+rng.Intn(100), 50+rng.Intn(20))
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36 Edg/%s",
			pick(desktopPlatforms["windows"]), major, v)
	case "mobile":
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Mobile Safari/537.36",
			pick(mobilePlatforms), chromeVersion())
	default:
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
			anyDesktop(), chromeVersion())
	}
}
