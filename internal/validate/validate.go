// Package validate holds the field-level policy checks for loan applications.
// Every function is pure: raw extracted text in, typed value or a
// FieldError out. Bounds are fixed lending policy, not tunables.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Policy bounds.
const (
	MinLoanAmount   = 50_000
	MaxLoanAmount   = 5_000_000
	MinTenureMonths = 12
	MaxTenureMonths = 60
	MinAge          = 21
	MaxAge          = 65
	MinAnnualIncome = 300_000
)

var (
	panRE     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	aadhaarRE = regexp.MustCompile(`^[2-9][0-9]{11}$`)
	nameRE    = regexp.MustCompile(`^[\p{L}][\p{L} .'-]{1,79}$`)
)

// FieldError reports why a single field failed validation. It is
// user-correctable: the orchestrator re-prompts for the field and the
// session state does not advance.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("validate: %s: %s", e.Field, e.Reason)
}

func fail(field, reason string) *FieldError {
	return &FieldError{Field: field, Reason: reason}
}

// Name checks the applicant name is plausible free text.
func Name(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fail("name", "name is required")
	}
	if !nameRE.MatchString(name) {
		return "", fail("name", "name must be 2-80 letters")
	}
	return name, nil
}

// Age parses and bounds-checks the applicant age.
func Age(raw string) (int, error) {
	age, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fail("age", "age must be a whole number")
	}
	if age < MinAge || age > MaxAge {
		return 0, fail("age", fmt.Sprintf("age must be between %d and %d", MinAge, MaxAge))
	}
	return age, nil
}

// LoanAmount parses a rupee amount and checks it against the policy range.
func LoanAmount(raw string) (int64, error) {
	amount, err := parseRupees(raw)
	if err != nil {
		return 0, fail("loan_amount", "amount must be numeric")
	}
	if amount < MinLoanAmount || amount > MaxLoanAmount {
		return 0, fail("loan_amount",
			fmt.Sprintf("amount must be between %d and %d", MinLoanAmount, MaxLoanAmount))
	}
	return amount, nil
}

// TenureMonths parses and bounds-checks the requested tenure.
func TenureMonths(raw string) (int, error) {
	tenure, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fail("tenure_months", "tenure must be a whole number of months")
	}
	if tenure < MinTenureMonths || tenure > MaxTenureMonths {
		return 0, fail("tenure_months",
			fmt.Sprintf("tenure must be between %d and %d months", MinTenureMonths, MaxTenureMonths))
	}
	return tenure, nil
}

// Purpose accepts any non-empty short description.
func Purpose(raw string) (string, error) {
	purpose := strings.TrimSpace(raw)
	if purpose == "" {
		return "", fail("purpose", "purpose is required")
	}
	if len(purpose) > 120 {
		return "", fail("purpose", "purpose is too long")
	}
	return strings.ToLower(purpose), nil
}

// AnnualIncome parses a rupee income and checks the policy minimum.
func AnnualIncome(raw string) (int64, error) {
	income, err := parseRupees(raw)
	if err != nil {
		return 0, fail("annual_income", "income must be numeric")
	}
	if income < MinAnnualIncome {
		return 0, fail("annual_income",
			fmt.Sprintf("annual income must be at least %d", MinAnnualIncome))
	}
	return income, nil
}

// employmentTypes maps accepted spellings to canonical values.
var employmentTypes = map[string]string{
	"salaried":      "salaried",
	"salary":        "salaried",
	"employee":      "salaried",
	"self-employed": "self-employed",
	"self employed": "self-employed",
	"selfemployed":  "self-employed",
	"business":      "self-employed",
	"freelancer":    "self-employed",
}

// EmploymentType normalizes the employment type to a canonical value.
func EmploymentType(raw string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := employmentTypes[key]; ok {
		return canonical, nil
	}
	return "", fail("employment_type", "employment type must be salaried or self-employed")
}

// PAN checks the permanent account number format (AAAAA9999A).
func PAN(raw string) (string, error) {
	pan := strings.ToUpper(strings.TrimSpace(raw))
	if !panRE.MatchString(pan) {
		return "", fail("pan", "PAN must match AAAAA9999A")
	}
	return pan, nil
}

// Aadhaar checks the 12-digit Aadhaar format. Spaces and dashes between
// digit groups are tolerated; leading 0/1 is invalid per the UIDAI scheme.
func Aadhaar(raw string) (string, error) {
	digits := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(raw))
	if !aadhaarRE.MatchString(digits) {
		return "", fail("aadhaar", "Aadhaar must be 12 digits and cannot start with 0 or 1")
	}
	return digits, nil
}

// Address accepts any reasonably sized free-text address.
func Address(raw string) (string, error) {
	address := strings.TrimSpace(raw)
	if len(address) < 8 {
		return "", fail("address", "address is too short")
	}
	if len(address) > 240 {
		return "", fail("address", "address is too long")
	}
	return address, nil
}

// parseRupees reads an integer rupee value, tolerating the formatting that
// shows up in chat: currency symbols, commas, and lakh shorthand.
func parseRupees(raw string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "₹")
	s = strings.TrimPrefix(s, "rs.")
	s = strings.TrimPrefix(s, "rs")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "lakhs"):
		multiplier, s = 100_000, strings.TrimSuffix(s, "lakhs")
	case strings.HasSuffix(s, "lakh"):
		multiplier, s = 100_000, strings.TrimSuffix(s, "lakh")
	case strings.HasSuffix(s, "l"):
		multiplier, s = 100_000, strings.TrimSuffix(s, "l")
	case strings.HasSuffix(s, "k"):
		multiplier, s = 1_000, strings.TrimSuffix(s, "k")
	}
	s = strings.TrimSpace(s)

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(value * float64(multiplier)), nil
}
