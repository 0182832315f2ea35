package conversation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/credgenhq/credgen/internal/session"
)

// Extractor pulls raw candidate strings out of a message for the fields
// the session is still missing. Candidates are unvalidated text; the
// engine runs them through the validators before anything is stored.
type Extractor interface {
	Extract(message string, missing []string) map[string]string
}

const amountPattern = `₹?\s*[\d,]+(?:\.\d+)?\s*(?:lakhs?|l\b|k\b)?`

var (
	nameLabeledRE = regexp.MustCompile(`(?i)(?:my name is|name'?s|i'?m|i am|this is)\s+([\p{L}][\p{L}'.-]*(?:\s+[\p{L}][\p{L}'.-]*){0,3})`)

	ageRE = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:years?\s*old|yrs?\s*old|y/?o)\b|(?:\bage\s*(?:is)?\s*:?\s*)(\d{1,2})\b`)

	amountLabeledRE = regexp.MustCompile(`(?i)(?:loan\s+(?:of|for|amount)|need|borrow|amount\s*(?:is|of)?\s*:?)\s*(` + amountPattern + `)`)
	amountBareRE    = regexp.MustCompile(`(?i)(₹\s*[\d,]+(?:\.\d+)?|[\d,]+(?:\.\d+)?\s*(?:lakhs?|l\b|k\b))`)

	tenureMonthsRE = regexp.MustCompile(`(?i)\b(\d{1,3})\s*months?\b`)
	tenureYearsRE  = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:years?|yrs?)\b`)

	incomeRE = regexp.MustCompile(`(?i)(?:earn|income|salary|ctc)\s*(?:is|of)?\s*:?\s*(` + amountPattern + `)`)

	// "salary"/"employee" stay out of the labeled pattern: "my salary is
	// 12 lakh" states income, not employment. Bare replies still reach
	// the employment validator, which accepts those spellings.
	employmentRE = regexp.MustCompile(`(?i)\b(salaried|self[- ]?employed|business|freelancer)\b`)

	panRE     = regexp.MustCompile(`\b([A-Za-z]{5}[0-9]{4}[A-Za-z])\b`)
	aadhaarRE = regexp.MustCompile(`\b([2-9][0-9]{3}[\s-]?[0-9]{4}[\s-]?[0-9]{4})\b`)

	addressRE = regexp.MustCompile(`(?i)(?:address\s*(?:is)?\s*:?|live\s+at|residing\s+at|stay\s+at)\s+(.{8,240})`)
)

// purposeKeywords map chat phrasing to a canonical loan purpose.
var purposeKeywords = []struct {
	pattern string
	purpose string
}{
	{"home renovation", "home renovation"},
	{"renovation", "home renovation"},
	{"wedding", "wedding"},
	{"marriage", "wedding"},
	{"education", "education"},
	{"tuition", "education"},
	{"medical", "medical"},
	{"hospital", "medical"},
	{"car", "vehicle"},
	{"bike", "vehicle"},
	{"vehicle", "vehicle"},
	{"business", "business"},
	{"travel", "travel"},
	{"vacation", "travel"},
	{"debt", "debt consolidation"},
	{"personal", "personal"},
}

// RegexExtractor is the default rule-based extractor. It only returns
// labeled matches; the engine decides when a bare reply should count as
// the answer to the field it just prompted for.
type RegexExtractor struct{}

func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{}
}

func (x *RegexExtractor) Extract(message string, missing []string) map[string]string {
	text := strings.TrimSpace(message)
	found := make(map[string]string)
	if text == "" || len(missing) == 0 {
		return found
	}

	wanted := make(map[string]bool, len(missing))
	for _, f := range missing {
		wanted[f] = true
	}

	if wanted[session.FieldName] {
		if m := nameLabeledRE.FindStringSubmatch(text); m != nil {
			found[session.FieldName] = strings.TrimSpace(m[1])
		}
	}
	if wanted[session.FieldAge] {
		if m := ageRE.FindStringSubmatch(text); m != nil {
			if m[1] != "" {
				found[session.FieldAge] = m[1]
			} else {
				found[session.FieldAge] = m[2]
			}
		}
	}
	if wanted[session.FieldLoanAmount] {
		// income statements carry amounts too, so those phrases are
		// blanked out before the bare-amount fallback runs
		amountText := incomeRE.ReplaceAllString(text, " ")
		if m := amountLabeledRE.FindStringSubmatch(amountText); m != nil {
			found[session.FieldLoanAmount] = strings.TrimSpace(m[1])
		} else if m := amountBareRE.FindStringSubmatch(amountText); m != nil {
			found[session.FieldLoanAmount] = strings.TrimSpace(m[1])
		}
	}
	if wanted[session.FieldTenureMonths] {
		// age phrases ("32 years old") would false-match the year form,
		// so they are blanked out first
		cleaned := ageRE.ReplaceAllString(text, " ")
		if m := tenureMonthsRE.FindStringSubmatch(text); m != nil {
			found[session.FieldTenureMonths] = m[1]
		} else if m := tenureYearsRE.FindStringSubmatch(cleaned); m != nil {
			if years, err := strconv.Atoi(m[1]); err == nil {
				found[session.FieldTenureMonths] = strconv.Itoa(years * 12)
			}
		}
	}
	if wanted[session.FieldAnnualIncome] {
		if m := incomeRE.FindStringSubmatch(text); m != nil {
			found[session.FieldAnnualIncome] = strings.TrimSpace(m[1])
		}
	}
	if wanted[session.FieldEmploymentType] {
		if m := employmentRE.FindStringSubmatch(text); m != nil {
			found[session.FieldEmploymentType] = m[1]
		}
	}
	if wanted[session.FieldPurpose] {
		lower := strings.ToLower(text)
		for _, p := range purposeKeywords {
			if strings.Contains(lower, p.pattern) {
				found[session.FieldPurpose] = p.purpose
				break
			}
		}
	}
	if wanted[session.FieldPAN] {
		if m := panRE.FindStringSubmatch(text); m != nil {
			found[session.FieldPAN] = m[1]
		}
	}
	if wanted[session.FieldAadhaar] {
		if m := aadhaarRE.FindStringSubmatch(text); m != nil {
			found[session.FieldAadhaar] = m[1]
		}
	}
	if wanted[session.FieldAddress] {
		if m := addressRE.FindStringSubmatch(text); m != nil {
			found[session.FieldAddress] = strings.TrimSpace(m[1])
		}
	}

	return found
}
