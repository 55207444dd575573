package quality

import "regexp"

// Year bounds. The upper bound is current year + maxYearOffset.
const (
	minYear       = 1900
	maxYearOffset = 2
)

const (
	maxAttendance      = 200_000
	maxCapacity        = 500_000
	minAboutLen        = 20
	futureEventHorizon = 30 // days
)

type namePattern struct {
	re   *regexp.Regexp
	code string
	sev  Severity
}

// suspiciousNamePatterns are checked in order; the first match wins. Edge
// whitespace is reported separately as NAME_WHITESPACE.
var suspiciousNamePatterns = []namePattern{
	{regexp.MustCompile(`^[a-z]`), CodeSuspiciousNameFormat, SeverityWarning},
	{regexp.MustCompile(`\d{4,}`), CodeSuspiciousNameFormat, SeverityWarning},
	{regexp.MustCompile(`[<>{}|\[\]]`), CodeSuspiciousNameFormat, SeverityWarning},
	{regexp.MustCompile(`\S\s{2,}\S`), CodeSuspiciousNameFormat, SeverityWarning},
	{regexp.MustCompile(`(?i)^(test|unknown|tbd|n/a|none)$`), CodeSuspiciousNameFormat, SeverityWarning},
	{regexp.MustCompile(`(?i)\bvs\.?\s`), CodeSuspiciousNameVS, SeverityError},
	{regexp.MustCompile(`,\s*\w+\s+\w+`), CodeSuspiciousNameMulti, SeverityError},
}

// invalidWrestlerNames are scraping artifacts that are never real people.
var invalidWrestlerNames = map[string]bool{
	"unknown": true, "tbd": true, "vacant": true, "n/a": true, "none": true,
	"test": true, "wrestler": true, "champion": true, "title": true,
	"match": true, "winner": true, "vs": true, "defeated": true, "def": true,
	"and": true, "the": true, "with": true,
}

// invalidNamePattern matches placeholder names with an optional numeric suffix.
var invalidNamePattern = regexp.MustCompile(`(?i)^(test|unknown|tbd)\d*$`)

// invalidNamePrefixes narrow repository scans for invalidNamePattern.
var invalidNamePrefixes = []string{"test", "unknown", "tbd"}

var stableIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\(professional wrestling\)$`),
	regexp.MustCompile(`(?i)\(wrestling\)$`),
	regexp.MustCompile(`(?i)\(faction\)$`),
	regexp.MustCompile(`(?i)\(stable\)$`),
	regexp.MustCompile(`(?i)\(tag team\)$`),
	regexp.MustCompile(`(?i)\(group\)$`),
}

var disambiguationSuffix = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

var knownStables = map[string]bool{
	"retribution": true, "the shield": true, "d-generation x": true, "dx": true,
	"nwo": true, "n.w.o.": true, "evolution": true, "the nexus": true,
	"legacy": true, "the wyatt family": true, "the bloodline": true,
	"judgment day": true, "imperium": true, "damage ctrl": true,
	"the hurt business": true, "the new day": true, "the usos": true,
	"authors of pain": true, "undisputed era": true, "the club": true,
	"bullet club": true, "los ingobernables": true, "chaos": true,
	"suzuki-gun": true, "united empire": true, "house of black": true,
	"the elite": true,
}

// knownTagTeams maps a team name to its members.
var knownTagTeams = map[string][]string{
	"ftr":                     {"Dax Harwood", "Cash Wheeler"},
	"the young bucks":         {"Matt Jackson", "Nick Jackson"},
	"young bucks":             {"Matt Jackson", "Nick Jackson"},
	"usos":                    {"Jey Uso", "Jimmy Uso"},
	"new day":                 {"Kofi Kingston", "Xavier Woods", "Big E"},
	"diy":                     {"Johnny Gargano", "Tommaso Ciampa"},
	"motor city machine guns": {"Alex Shelley", "Chris Sabin"},
	"mcmg":                    {"Alex Shelley", "Chris Sabin"},
	"the hardys":              {"Matt Hardy", "Jeff Hardy"},
	"hardys":                  {"Matt Hardy", "Jeff Hardy"},
	"hardy boyz":              {"Matt Hardy", "Jeff Hardy"},
	"the dudley boyz":         {"Bubba Ray Dudley", "D-Von Dudley"},
	"dudley boyz":             {"Bubba Ray Dudley", "D-Von Dudley"},
	"edge and christian":      {"Edge", "Christian"},
	"rated rko":               {"Edge", "Randy Orton"},
	"aop":                     {"Akam", "Rezar"},
	"american alpha":          {"Jason Jordan", "Chad Gable"},
	"lucha bros":              {"Pentagon Jr.", "Rey Fenix"},
	"lucha brothers":          {"Pentagon Jr.", "Rey Fenix"},
	"proud n powerful":        {"Santana", "Ortiz"},
	"santana and ortiz":       {"Santana", "Ortiz"},
	"private party":           {"Marq Quen", "Isiah Kassidy"},
	"the acclaimed":           {"Max Caster", "Anthony Bowens"},
	"acclaimed":               {"Max Caster", "Anthony Bowens"},
	"swerve in our glory":     {"Swerve Strickland", "Keith Lee"},
}

// TagTeamMembers returns the members of a known tag team, if name is one.
func TagTeamMembers(name string) ([]string, bool) {
	m, ok := knownTagTeams[normalizeLower(name)]
	return m, ok
}
