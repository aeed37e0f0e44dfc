package conversation

import (
	"regexp"
	"sort"
	"strings"
)

// conditionAbbreviations expands common medical shorthand before matching.
var conditionAbbreviations = map[string]string{
	"t2dm":  "type 2 diabetes mellitus",
	"t1dm":  "type 1 diabetes mellitus",
	"dm":    "diabetes mellitus",
	"ibs":   "irritable bowel syndrome",
	"ibs-d": "irritable bowel syndrome with diarrhea",
	"ibs-c": "irritable bowel syndrome with constipation",
	"adhd":  "attention-deficit/hyperactivity disorder",
	"add":   "attention deficit disorder",
	"mdd":   "major depressive disorder",
	"copd":  "chronic obstructive pulmonary disease",
	"rsv":   "respiratory syncytial virus",
	"ra":    "rheumatoid arthritis",
	"hbp":   "high blood pressure",
	"chf":   "congestive heart failure",
	"cad":   "coronary artery disease",
	"ckd":   "chronic kidney disease",
	"gerd":  "gastroesophageal reflux disease",
	"uti":   "urinary tract infection",
	"afib":  "atrial fibrillation",
	"ms":    "multiple sclerosis",
	"als":   "amyotrophic lateral sclerosis",
	"ptsd":  "post-traumatic stress disorder",
	"ocd":   "obsessive-compulsive disorder",
	"bph":   "benign prostatic hyperplasia",
	"dvt":   "deep vein thrombosis",
	"tbi":   "traumatic brain injury",
	"sle":   "systemic lupus erythematosus",
	"hiv":   "human immunodeficiency virus",
	"aids":  "acquired immunodeficiency syndrome",
	"hcv":   "hepatitis c virus",
	"hbv":   "hepatitis b virus",
	"osa":   "obstructive sleep apnea",
	"pcos":  "polycystic ovary syndrome",
	"ibd":   "inflammatory bowel disease",
	"uc":    "ulcerative colitis",
}

// conditionSynonyms maps a canonical condition to its observed variants.
var conditionSynonyms = map[string][]string{
	"diabetes":                 {"diabetes mellitus", "sugar diabetes"},
	"type 2 diabetes":          {"type 2 diabetes mellitus", "t2dm", "diabetes type 2", "adult-onset diabetes"},
	"type 1 diabetes":          {"type 1 diabetes mellitus", "t1dm", "diabetes type 1", "juvenile diabetes"},
	"high blood pressure":      {"hypertension", "htn", "hbp", "elevated blood pressure"},
	"irritable bowel syndrome": {"ibs", "spastic colon", "nervous colon", "irritable colon"},
	"depression":               {"major depressive disorder", "mdd", "clinical depression", "major depression"},
	"adhd":                     {"attention deficit hyperactivity disorder", "attention-deficit/hyperactivity disorder"},
	"copd":                     {"chronic obstructive pulmonary disease", "chronic obstructive lung disease"},
	"rheumatoid arthritis":     {"inflammatory arthritis"},
	"gout":                     {"gouty arthritis", "metabolic arthritis"},
	"migraine":                 {"migraine headache", "migraines"},
	"asthma":                   {"bronchial asthma", "reactive airway disease"},
	"lupus":                    {"systemic lupus erythematosus"},
	"fibromyalgia":             {"fibromyalgia syndrome", "fms"},
	"crohn's disease":          {"crohn disease", "regional enteritis"},
	"ulcerative colitis":       {"inflammatory bowel disease"},
	"heart disease":            {"cardiovascular disease", "cvd", "cardiac disease"},
	"kidney disease":           {"renal disease", "chronic kidney disease"},
	"anxiety":                  {"anxiety disorder", "generalized anxiety disorder", "gad"},
	"epilepsy":                 {"seizure disorder", "seizures"},
	"parkinson":                {"parkinson's disease", "parkinsons"},
	"alzheimer":                {"alzheimer's disease", "alzheimers", "dementia"},
	"cancer":                   {"malignancy", "neoplasm", "tumor", "carcinoma"},
	"fungal infection":         {"toe fungus", "nail fungus", "foot fungus", "athlete's foot", "onychomycosis"},
}

// synonymToCanonical is the reverse index of conditionSynonyms.
var synonymToCanonical = func() map[string]string {
	out := make(map[string]string)
	for canonical, synonyms := range conditionSynonyms {
		for _, syn := range synonyms {
			out[strings.ToLower(syn)] = canonical
		}
	}
	return out
}()

// knownConditions seeds the registry with the conditions our trial catalog
// actually screens for. Lookups also fall through to the synonym and
// abbreviation tables, so this list only needs the plain names.
var knownConditions = func() map[string]struct{} {
	names := []string{
		"diabetes", "type 2 diabetes", "type 1 diabetes", "gout",
		"rheumatoid arthritis", "osteoarthritis", "arthritis", "asthma",
		"copd", "ibs", "irritable bowel syndrome", "crohn's disease",
		"ulcerative colitis", "depression", "anxiety", "adhd", "migraine",
		"epilepsy", "hypertension", "high blood pressure", "heart disease",
		"kidney disease", "lupus", "fibromyalgia", "psoriasis", "eczema",
		"alzheimer", "parkinson", "multiple sclerosis", "cancer",
		"breast cancer", "lung cancer", "prostate cancer", "melanoma",
		"obesity", "fatty liver disease", "hepatitis", "fungal infection",
		"toe fungus", "nail fungus", "sleep apnea", "insomnia",
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}()

var medicalTokenRE = regexp.MustCompile(`\b(syndrome|disease|disorder|cancer|carcinoma|arthritis|diabetes|hypertension|infection|inflammation)\b`)

// medicalKeywords flag text that reads like a condition even when the
// registry has no exact entry for it.
var medicalKeywords = []string{
	"disease", "syndrome", "disorder", "cancer", "diabetes",
	"arthritis", "asthma", "copd", "ibs", "gout", "fungus",
	"infection", "pain", "ache", "inflammation", "chronic",
}

// isMedicalCondition reports whether text names a condition the system
// recognizes, via the registry, the synonym tables, or medical phrasing.
func isMedicalCondition(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	if _, ok := knownConditions[t]; ok {
		return true
	}
	if _, ok := synonymToCanonical[t]; ok {
		return true
	}
	if _, ok := conditionAbbreviations[t]; ok {
		return true
	}
	for name := range knownConditions {
		if strings.Contains(t, name) {
			return true
		}
	}
	return medicalTokenRE.MatchString(t)
}

// isLikelyCondition is the wider guard used to reject condition text that a
// location pattern accidentally captured.
func isLikelyCondition(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if isMedicalCondition(t) {
		return true
	}
	if normalizeCondition(t) != t {
		return true
	}
	for _, kw := range medicalKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// registryNames holds the registry entries longest-first so substring
// resolution is deterministic and prefers the most specific name.
var registryNames = func() []string {
	names := make([]string, 0, len(knownConditions))
	for n := range knownConditions {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}()

// normalizeCondition maps a condition name to its canonical form: synonym
// lookup, then abbreviation expansion, then registry substring resolution
// (so "m looking for diabetes" still lands on "diabetes").
func normalizeCondition(condition string) string {
	t := strings.ToLower(strings.TrimSpace(condition))
	if t == "" {
		return t
	}
	if canonical, ok := synonymToCanonical[t]; ok {
		return canonical
	}
	if full, ok := conditionAbbreviations[t]; ok {
		if canonical, ok := synonymToCanonical[full]; ok {
			return canonical
		}
		return full
	}
	if _, ok := knownConditions[t]; ok {
		return t
	}
	for _, name := range registryNames {
		if strings.Contains(t, name) || strings.Contains(name, t) {
			return name
		}
	}
	return t
}

// DetectCondition scans free text for a registry condition, returning the
// canonical name or "" when nothing matches.
func DetectCondition(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return ""
	}
	for _, name := range registryNames {
		if strings.Contains(t, name) {
			return name
		}
	}
	return ""
}

// locationAbbreviations expands single-token city shorthand after
// capitalization (so the keys are capitalized forms).
var locationAbbreviations = map[string]string{
	"Ny":  "New York",
	"Nyc": "New York City",
	"La":  "Los Angeles",
	"Sf":  "San Francisco",
	"Dc":  "Washington DC",
}

// normalizeLocation capitalizes each word and expands known abbreviations.
func normalizeLocation(location string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(location)))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	normalized := strings.Join(words, " ")
	if full, ok := locationAbbreviations[normalized]; ok {
		return full
	}
	return normalized
}
