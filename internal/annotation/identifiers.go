package annotation

import "strings"

// UnclassifiedTaxon is the sentinel taxon identifier under which
// connectivity features with no recorded provenance are registered, so that
// every path feature stays discoverable by some taxon key.
const UnclassifiedTaxon = "NCBITaxon:unclassified"

// pathModelPrefix marks external identifiers that name connectivity paths
// rather than anatomical structures.
const pathModelPrefix = "ilxtr:"

// NormalizeIdentifier canonicalizes an external identifier for index keys:
// surrounding whitespace is trimmed and the CURIE prefix (the part before
// the first colon) is upper-cased. Local parts keep their case, since
// ontology local ids are case-sensitive.
func NormalizeIdentifier(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.Index(id, ":"); i > 0 {
		return strings.ToUpper(id[:i]) + id[i:]
	}
	return id
}

// IsPathModel reports whether the identifier names a connectivity path
// model.
func IsPathModel(id string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(id)), pathModelPrefix)
}
