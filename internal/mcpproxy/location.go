package mcpproxy

import "strings"

// Location is the geo hint carried by the x-location-info header, used to
// pick and render an egress proxy entry (§4.6). Grounded on
// residential_proxy_sessions.py's Location model.
type Location struct {
	Country      string
	State        string // US only
	City         string
	CityCompacted string
	PostalCode   string
}

// normalize lower-cases and fills CityCompacted the way
// Location.model_post_init does.
func (l Location) normalize() Location {
	l.Country = strings.ToLower(l.Country)
	if l.City != "" {
		l.City = strings.ToLower(l.City)
		if l.CityCompacted == "" {
			l.CityCompacted = strings.NewReplacer("-", "", "_", "", " ", "").Replace(l.City)
		}
	}
	if l.State != "" {
		l.State = strings.ToLower(strings.ReplaceAll(l.State, " ", "_"))
	}
	return l
}

// templateValues returns the placeholder -> value map used by renderTemplate,
// omitting state unless country is "us" (§4.6: "state (US only)").
func (l Location) templateValues() map[string]string {
	l = l.normalize()
	values := map[string]string{}
	if l.Country != "" {
		values["country"] = l.Country
		if l.State != "" && l.Country == "us" {
			values["state"] = l.State
		}
	}
	if l.City != "" {
		values["city"] = strings.ReplaceAll(l.City, " ", "_")
		if l.CityCompacted != "" {
			values["city_compacted"] = l.CityCompacted
		}
	}
	if l.PostalCode != "" {
		values["postal_code"] = l.PostalCode
	}
	return values
}

// hierarchy returns successively less-specific Locations to probe, ordered
// most-specific first and ending with country-only, filtered to the fields
// named in fields (a per-proxy hierarchy_fields list, §4.6). An empty
// fields list means "try only the fully-specified location".
func (l Location) hierarchy(fields []string) []Location {
	if len(fields) == 0 {
		return []Location{l}
	}

	var levels []Location
	for i := range fields {
		levels = append(levels, l.dropFieldsAfter(fields[i:]))
	}
	levels = append(levels, Location{Country: l.Country})
	return levels
}

// dropFieldsAfter returns a copy of l keeping only the fields named in keep.
func (l Location) dropFieldsAfter(keep []string) Location {
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}
	out := Location{Country: l.Country}
	if keepSet["state"] {
		out.State = l.State
	}
	if keepSet["city"] {
		out.City = l.City
		out.CityCompacted = l.CityCompacted
	}
	if keepSet["postal_code"] {
		out.PostalCode = l.PostalCode
	}
	return out
}
