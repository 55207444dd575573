package discovery

import "strings"

// Promotion names the organization an event or title most likely belongs to.
type Promotion struct {
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

type promotionPattern struct {
	tokens    []string
	promotion Promotion
}

// promotionPatterns are checked in order; the first token found in the name
// wins. Flagship event names follow the organizations so that an explicit
// abbreviation takes precedence.
var promotionPatterns = []promotionPattern{
	{[]string{"WWE", "WWF", "World Wrestling Entertainment"}, Promotion{"WWE", "WWE"}},
	{[]string{"AEW", "All Elite"}, Promotion{"All Elite Wrestling", "AEW"}},
	{[]string{"NWA", "National Wrestling Alliance"}, Promotion{"National Wrestling Alliance", "NWA"}},
	{[]string{"WCW", "World Championship Wrestling"}, Promotion{"World Championship Wrestling", "WCW"}},
	{[]string{"ECW", "Extreme Championship"}, Promotion{"Extreme Championship Wrestling", "ECW"}},
	{[]string{"TNA", "Impact", "Total Nonstop"}, Promotion{"Impact Wrestling", "IMPACT"}},
	{[]string{"ROH", "Ring of Honor"}, Promotion{"Ring of Honor", "ROH"}},
	{[]string{"NJPW", "New Japan"}, Promotion{"New Japan Pro-Wrestling", "NJPW"}},
	{[]string{"CMLL", "Consejo Mundial"}, Promotion{"CMLL", "CMLL"}},
	{[]string{"AAA", "Lucha Libre AAA"}, Promotion{"Lucha Libre AAA", "AAA"}},
	{[]string{"Stardom"}, Promotion{"Stardom", "STARDOM"}},
	{[]string{"DDT"}, Promotion{"DDT Pro-Wrestling", "DDT"}},
	{[]string{"AJPW", "All Japan"}, Promotion{"All Japan Pro Wrestling", "AJPW"}},
	{[]string{"NOAH"}, Promotion{"Pro Wrestling Noah", "NOAH"}},
	{[]string{"MLW", "Major League Wrestling"}, Promotion{"Major League Wrestling", "MLW"}},
	{[]string{"GCW", "Game Changer"}, Promotion{"Game Changer Wrestling", "GCW"}},
	{[]string{"PWG", "Pro Wrestling Guerrilla"}, Promotion{"Pro Wrestling Guerrilla", "PWG"}},
	{[]string{"PROGRESS"}, Promotion{"PROGRESS Wrestling", "PROGRESS"}},
	{[]string{"RevPro", "Revolution Pro"}, Promotion{"Revolution Pro Wrestling", "RevPro"}},
	{[]string{"ICW"}, Promotion{"Insane Championship Wrestling", "ICW"}},
	{[]string{"OVW", "Ohio Valley"}, Promotion{"Ohio Valley Wrestling", "OVW"}},
	{[]string{"NXT"}, Promotion{"WWE NXT", "NXT"}},
	{[]string{"EVOLVE"}, Promotion{"EVOLVE Wrestling", "EVOLVE"}},
	{[]string{"CZW", "Combat Zone"}, Promotion{"Combat Zone Wrestling", "CZW"}},
	{[]string{"Wrestle Kingdom", "G1"}, Promotion{"New Japan Pro-Wrestling", "NJPW"}},
	{[]string{"WrestleMania", "Royal Rumble", "SummerSlam", "Survivor Series"}, Promotion{"WWE", "WWE"}},
	{[]string{"Double or Nothing", "All Out", "Full Gear"}, Promotion{"All Elite Wrestling", "AEW"}},
}

// InferPromotion guesses the promotion behind an event or title name from
// well-known abbreviations, names and flagship shows. Abbreviations match
// whole words only, so "AAA" does not match inside "NAAAC".
func InferPromotion(name string) (Promotion, bool) {
	upper := strings.ToUpper(name)
	words := strings.FieldsFunc(upper, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	for _, p := range promotionPatterns {
		for _, tok := range p.tokens {
			tok = strings.ToUpper(tok)
			if strings.Contains(tok, " ") {
				if strings.Contains(upper, tok) {
					return p.promotion, true
				}
				continue
			}
			for _, w := range words {
				if w == tok {
					return p.promotion, true
				}
			}
		}
	}
	return Promotion{}, false
}
