package posthog

import (
	"strings"

	countrylookup "github.com/statsig-io/ip3country-go"
	"github.com/ua-parser/uap-go/uaparser"
)

// derivedPropertyResolver fills in person properties the server would
// normally derive itself, so conditions targeting them can still be decided
// locally: GeoIP country from "$ip" and OS/browser details from the user
// agent. Derived values never overwrite properties already in the bag.
type derivedPropertyResolver struct {
	countryLookup *countrylookup.CountryLookup
	uaParser      *uaparser.Parser
}

func newDerivedPropertyResolver() *derivedPropertyResolver {
	return &derivedPropertyResolver{
		countryLookup: countrylookup.New(),
		uaParser:      uaparser.NewFromSaved(),
	}
}

func (r *derivedPropertyResolver) enrich(properties map[string]interface{}) map[string]interface{} {
	enriched := make(map[string]interface{}, len(properties)+5)
	for k, v := range properties {
		enriched[k] = v
	}

	if ip, ok := stringProperty(enriched, "$ip"); ok {
		if _, present := enriched["$geoip_country_code"]; !present {
			if country, found := r.countryLookup.LookupIp(ip); found {
				enriched["$geoip_country_code"] = country
			}
		}
	}

	ua, ok := stringProperty(enriched, "$useragent")
	if !ok {
		ua, ok = stringProperty(enriched, "$user_agent")
	}
	if ok {
		client := r.uaParser.Parse(ua)
		setIfAbsent(enriched, "$os", client.Os.Family)
		setIfAbsent(enriched, "$os_version", joinVersion(client.Os.Major, client.Os.Minor, client.Os.Patch))
		setIfAbsent(enriched, "$browser", client.UserAgent.Family)
		setIfAbsent(enriched, "$browser_version", joinVersion(client.UserAgent.Major, client.UserAgent.Minor, client.UserAgent.Patch))
	}

	return enriched
}

func stringProperty(properties map[string]interface{}, key string) (string, bool) {
	value, ok := properties[key].(string)
	return value, ok && value != ""
}

func setIfAbsent(properties map[string]interface{}, key, value string) {
	if value == "" {
		return
	}
	if _, present := properties[key]; !present {
		properties[key] = value
	}
}

func joinVersion(parts ...string) string {
	var kept []string
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ".")
}
