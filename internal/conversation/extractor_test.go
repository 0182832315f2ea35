package conversation

import (
	"testing"

	"github.com/credgenhq/credgen/internal/session"
)

func TestRegexExtractorLabeledFields(t *testing.T) {
	x := NewRegexExtractor()

	tests := []struct {
		name    string
		message string
		missing []string
		want    map[string]string
	}{
		{
			name:    "labeled name",
			message: "My name is Asha Rao",
			missing: session.BasicFields,
			want:    map[string]string{session.FieldName: "Asha Rao"},
		},
		{
			name:    "age phrase",
			message: "I am 32 years old",
			missing: session.BasicFields,
			want:    map[string]string{session.FieldAge: "32"},
		},
		{
			name:    "amount with purpose",
			message: "I need a loan of 5 lakh for my wedding",
			missing: session.BasicFields,
			want: map[string]string{
				session.FieldLoanAmount: "5 lakh",
				session.FieldPurpose:    "wedding",
			},
		},
		{
			name:    "tenure in months",
			message: "36 months",
			missing: []string{session.FieldTenureMonths},
			want:    map[string]string{session.FieldTenureMonths: "36"},
		},
		{
			name:    "tenure in years converts to months",
			message: "over 3 years",
			missing: []string{session.FieldTenureMonths},
			want:    map[string]string{session.FieldTenureMonths: "36"},
		},
		{
			name:    "age phrase does not leak into tenure",
			message: "I am 32 years old",
			missing: []string{session.FieldTenureMonths},
			want:    map[string]string{},
		},
		{
			name:    "income",
			message: "my income is 12 lakh",
			missing: session.BasicFields,
			want:    map[string]string{session.FieldAnnualIncome: "12 lakh"},
		},
		{
			name:    "salary statement is income not employment",
			message: "my salary is 9 lakh",
			missing: []string{session.FieldAnnualIncome, session.FieldEmploymentType},
			want:    map[string]string{session.FieldAnnualIncome: "9 lakh"},
		},
		{
			name:    "employment",
			message: "I'm self employed",
			missing: []string{session.FieldEmploymentType},
			want:    map[string]string{session.FieldEmploymentType: "self employed"},
		},
		{
			name:    "pan anywhere in text",
			message: "sure, it's ABCDE1234F",
			missing: session.KYCFields,
			want:    map[string]string{session.FieldPAN: "ABCDE1234F"},
		},
		{
			name:    "aadhaar with spaces",
			message: "2345 6789 0123",
			missing: session.KYCFields,
			want:    map[string]string{session.FieldAadhaar: "2345 6789 0123"},
		},
		{
			name:    "labeled address",
			message: "my address is 12 MG Road, Bengaluru 560001",
			missing: []string{session.FieldAddress},
			want:    map[string]string{session.FieldAddress: "12 MG Road, Bengaluru 560001"},
		},
		{
			name:    "bare reply yields nothing labeled",
			message: "Asha Rao",
			missing: session.BasicFields,
			want:    map[string]string{},
		},
		{
			name:    "only missing fields are considered",
			message: "My name is Asha Rao and I am 32 years old",
			missing: []string{session.FieldAge},
			want:    map[string]string{session.FieldAge: "32"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := x.Extract(tt.message, tt.missing)
			if len(got) != len(tt.want) {
				t.Fatalf("Extract(%q) = %v, want %v", tt.message, got, tt.want)
			}
			for field, want := range tt.want {
				if got[field] != want {
					t.Errorf("field %s = %q, want %q", field, got[field], want)
				}
			}
		})
	}
}
