package assessing

import (
	"regexp"
	"strings"

	"github.com/spigell/auto-apply/internal/application"
)

var locationSeparators = regexp.MustCompile(`[,/]`)

var countryAliases = map[string]string{
	"uk":             "United Kingdom",
	"u.k.":           "United Kingdom",
	"united kingdom": "United Kingdom",
	"gb":             "United Kingdom",
	"great britain":  "United Kingdom",
	"england":        "United Kingdom",
	"scotland":       "United Kingdom",
	"wales":          "United Kingdom",
	"usa":            "United States",
	"us":             "United States",
	"u.s.":           "United States",
	"u.s.a.":         "United States",
	"united states":  "United States",
}

var euMembers = map[string]struct{}{
	"austria": {}, "belgium": {}, "bulgaria": {}, "croatia": {}, "cyprus": {},
	"czechia": {}, "czech republic": {}, "denmark": {}, "estonia": {}, "finland": {},
	"france": {}, "germany": {}, "greece": {}, "hungary": {}, "ireland": {},
	"italy": {}, "latvia": {}, "lithuania": {}, "luxembourg": {}, "malta": {},
	"netherlands": {}, "poland": {}, "portugal": {}, "romania": {}, "slovakia": {},
	"slovenia": {}, "spain": {}, "sweden": {},
}

// location is the profile's free-text location split into parts.
type location struct {
	Full        string
	City        string
	Country     string
	CountryFull string
	Postal      string
}

func deriveLocation(meta application.ProfileMeta) location {
	full := strings.TrimSpace(meta.Location)
	loc := location{Full: full, Postal: strings.TrimSpace(meta.PostalCode)}

	var parts []string
	for _, part := range locationSeparators.Split(full, -1) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return loc
	}

	loc.City = parts[0]
	loc.Country = parts[len(parts)-1]
	loc.CountryFull = normalizeCountry(loc.Country)
	return loc
}

func normalizeCountry(name string) string {
	name = strings.TrimSpace(name)
	if full, ok := countryAliases[strings.ToLower(name)]; ok {
		return full
	}
	return name
}

// regionKey maps a normalized country to its work-authorization key in the profile.
func regionKey(country string) string {
	lower := strings.ToLower(strings.TrimSpace(country))
	switch lower {
	case "united kingdom":
		return "uk"
	case "united states":
		return "us"
	}
	if _, ok := euMembers[lower]; ok {
		return "eu"
	}
	return lower
}

// workAuthorization picks the preference for the country's region, falling back to uk then eu.
func workAuthorization(prefs map[string]string, country string) string {
	if len(prefs) == 0 {
		return ""
	}
	lowered := make(map[string]string, len(prefs))
	for key, value := range prefs {
		lowered[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	for _, key := range []string{regionKey(country), "uk", "eu"} {
		if key == "" {
			continue
		}
		if value := lowered[key]; value != "" {
			return value
		}
	}
	return ""
}

// matchOption resolves a preference against the field's options.
// Without options the preference is returned as is. With options and no match it reports false.
func matchOption(field *application.FieldDescriptor, preference string) (string, bool) {
	preference = strings.TrimSpace(preference)
	if preference == "" {
		return "", false
	}
	if !field.HasOptions() {
		return preference, true
	}

	pref := strings.ToLower(preference)
	for _, option := range field.Options {
		if strings.ToLower(strings.TrimSpace(option)) == pref {
			return option, true
		}
	}
	for _, option := range field.Options {
		lower := strings.ToLower(strings.TrimSpace(option))
		if lower == "" {
			continue
		}
		if strings.Contains(lower, pref) || strings.Contains(pref, lower) {
			return option, true
		}
	}
	for _, option := range field.Options {
		lower := strings.ToLower(option)
		for _, token := range strings.Fields(pref) {
			if strings.Contains(lower, token) {
				return option, true
			}
		}
	}
	return "", false
}
