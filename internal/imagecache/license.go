// Package imagecache screens image licenses, downloads allowed images with a
// hard size cap and stores them under a deterministic per-record path.
package imagecache

import "strings"

// Normalized license families.
const (
	LicenseCC0     = "cc0"
	LicensePD      = "pd"
	LicenseCCBy    = "cc-by"
	LicenseCCBySA  = "cc-by-sa"
	licenseUnknown = ""
)

// restricted markers disqualify a license even when a permissive family name
// also appears ("cc-by-nc-sa-2.0").
var restricted = []string{"-nc", "-nd", "noncommercial", "non-commercial", "noderiv", "no-deriv", "all-rights-reserved", "copyright"}

// NormalizeLicense maps a published license name to one of the allowed
// families, or "" when it is not on the allow-list.
func NormalizeLicense(license string) string {
	l := strings.ToLower(strings.TrimSpace(license))
	if l == "" {
		return licenseUnknown
	}
	l = strings.Join(strings.FieldsFunc(l, func(r rune) bool { return r == ' ' || r == '_' }), "-")
	for _, r := range restricted {
		if strings.Contains(l, r) {
			return licenseUnknown
		}
	}
	switch {
	case strings.Contains(l, "cc0"), strings.Contains(l, "cc-zero"):
		return LicenseCC0
	case l == "pd", strings.HasPrefix(l, "pd-"), strings.Contains(l, "public-domain"):
		return LicensePD
	case strings.Contains(l, "cc-by-sa"):
		return LicenseCCBySA
	case strings.Contains(l, "cc-by"):
		return LicenseCCBy
	}
	return licenseUnknown
}

// Allowed reports whether license is public domain or a permissive Creative
// Commons variant.
func Allowed(license string) bool {
	return NormalizeLicense(license) != licenseUnknown
}
