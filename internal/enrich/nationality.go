package enrich

import (
	"strings"

	"github.com/sells-group/wrestlebot/internal/quality"
)

// demonyms maps normalized place names to nationalities. Keys cover
// countries, common abbreviations and the sub-national regions that most
// often close a billed hometown.
var demonyms = map[string]string{
	"united states": "American", "united states of america": "American", "usa": "American",
	"us": "American", "america": "American",
	"canada": "Canadian", "mexico": "Mexican", "japan": "Japanese",
	"united kingdom": "British", "uk": "British", "england": "British", "scotland": "British",
	"wales": "British", "northern ireland": "British", "ireland": "Irish",
	"puerto rico": "Puerto Rican", "australia": "Australian", "new zealand": "New Zealander",
	"germany": "German", "france": "French", "italy": "Italian", "spain": "Spanish",
	"netherlands": "Dutch", "belgium": "Belgian", "switzerland": "Swiss", "austria": "Austrian",
	"sweden": "Swedish", "norway": "Norwegian", "denmark": "Danish", "finland": "Finnish",
	"poland": "Polish", "czech republic": "Czech", "hungary": "Hungarian", "romania": "Romanian",
	"russia": "Russian", "ukraine": "Ukrainian", "turkey": "Turkish", "greece": "Greek",
	"india": "Indian", "pakistan": "Pakistani", "china": "Chinese", "south korea": "South Korean",
	"korea": "Korean", "philippines": "Filipino", "samoa": "Samoan", "american samoa": "Samoan",
	"tonga": "Tongan", "fiji": "Fijian", "south africa": "South African", "nigeria": "Nigerian",
	"ghana": "Ghanaian", "senegal": "Senegalese", "egypt": "Egyptian", "brazil": "Brazilian",
	"argentina": "Argentine", "chile": "Chilean", "peru": "Peruvian", "colombia": "Colombian",
	"venezuela": "Venezuelan", "cuba": "Cuban", "dominican republic": "Dominican",
	"jamaica": "Jamaican", "trinidad and tobago": "Trinidadian", "haiti": "Haitian",
	"iran": "Iranian", "iraq": "Iraqi", "israel": "Israeli", "lebanon": "Lebanese",
	"saudi arabia": "Saudi", "singapore": "Singaporean", "malaysia": "Malaysian",
	"indonesia": "Indonesian", "thailand": "Thai", "vietnam": "Vietnamese", "taiwan": "Taiwanese",
	"hong kong": "Hong Konger", "portugal": "Portuguese", "bulgaria": "Bulgarian",
	"croatia": "Croatian", "serbia": "Serbian",
}

var usStates = []string{
	"alabama", "alaska", "arizona", "arkansas", "california", "colorado", "connecticut",
	"delaware", "florida", "georgia", "hawaii", "idaho", "illinois", "indiana", "iowa",
	"kansas", "kentucky", "louisiana", "maine", "maryland", "massachusetts", "michigan",
	"minnesota", "mississippi", "missouri", "montana", "nebraska", "nevada", "new hampshire",
	"new jersey", "new mexico", "new york", "north carolina", "north dakota", "ohio",
	"oklahoma", "oregon", "pennsylvania", "rhode island", "south carolina", "south dakota",
	"tennessee", "texas", "utah", "vermont", "virginia", "washington", "west virginia",
	"wisconsin", "wyoming", "district of columbia", "dc",
}

var canadianProvinces = []string{
	"alberta", "british columbia", "manitoba", "new brunswick", "newfoundland and labrador",
	"nova scotia", "ontario", "prince edward island", "quebec", "saskatchewan",
}

func init() {
	for _, s := range usStates {
		demonyms[s] = "American"
	}
	for _, p := range canadianProvinces {
		demonyms[p] = "Canadian"
	}
}

// NationalityFromHometown derives a nationality from the last place named in
// a hometown such as "Calgary, Alberta, Canada". Bare city names resolve to
// nothing.
func NationalityFromHometown(hometown string) (string, bool) {
	parts := strings.Split(hometown, ",")
	for i := len(parts) - 1; i >= 0 && i >= len(parts)-2; i-- {
		key := strings.TrimPrefix(quality.NormalizeName(parts[i]), "the ")
		if n, ok := demonyms[key]; ok {
			return n, true
		}
	}
	return "", false
}
