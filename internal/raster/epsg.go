package raster

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	epsgPattern = regexp.MustCompile(`(?i)EPSG[:\s]*(\d{4,5})`)
	utmPattern  = regexp.MustCompile(`(?i)UTM zone (\d{1,2})\s*([NS])`)
)

// RecoverEPSG guesses an EPSG code from GeoTIFF citation strings. It knows
// explicit EPSG references, WGS 84 UTM zones, Web Mercator and plain WGS 84.
func RecoverEPSG(citation string) (int, bool) {
	if citation == "" {
		return 0, false
	}

	if m := epsgPattern.FindStringSubmatch(citation); m != nil {
		code, err := strconv.Atoi(m[1])
		if err == nil && code != EPSGUserDefined {
			return code, true
		}
	}

	lower := strings.ToLower(citation)
	wgs84 := strings.Contains(lower, "wgs 84") || strings.Contains(lower, "wgs_1984") || strings.Contains(lower, "wgs84")

	if m := utmPattern.FindStringSubmatch(citation); m != nil && wgs84 {
		zone, _ := strconv.Atoi(m[1])
		if zone >= 1 && zone <= 60 {
			if strings.EqualFold(m[2], "N") {
				return 32600 + zone, true
			}
			return 32700 + zone, true
		}
	}

	if strings.Contains(lower, "pseudo-mercator") || strings.Contains(lower, "pseudo mercator") ||
		strings.Contains(lower, "popular visualisation") || strings.Contains(lower, "web_mercator") {
		return 3857, true
	}

	if wgs84 && !strings.Contains(lower, "utm") {
		return 4326, true
	}
	return 0, false
}
