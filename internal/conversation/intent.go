package conversation

import (
	"regexp"
	"strings"
)

// Intent is the coarse classification of one applicant message. The
// engine decides what an intent means in the current state; classifying
// is state-free.
type Intent string

const (
	IntentProvideInfo Intent = "provide_info"
	IntentAccept      Intent = "accept"
	IntentNegotiate   Intent = "negotiate"
	IntentRateInquiry Intent = "rate_inquiry"
	IntentCancel      Intent = "cancel"
	IntentOther       Intent = "other"
)

// Classifier maps a raw message to an Intent.
type Classifier interface {
	Classify(message string) Intent
}

var (
	cancelRE = regexp.MustCompile(`(?i)\b(cancel|quit|exit|withdraw|not interested|forget it|never ?mind|close my application)\b`)
	acceptRE = regexp.MustCompile(`(?i)\b(accept|agreed?|confirm|proceed|go ahead|sounds good|deal|yes|sign me up|take it|i'?ll take)\b`)

	negotiateRE = regexp.MustCompile(`(?i)\b(negotiate|lower|reduce|reduction|discount|better (rate|deal|offer)|too high|too expensive|can you do|match)\b`)

	rateInquiryRE = regexp.MustCompile(`(?i)\b(what('?s| is) (the |my )?(rate|emi|interest)|current (rate|offer|emi)|interest rate|monthly (payment|installment)|remind me)\b`)

	// Signals that a message is carrying application data rather than
	// smalltalk: digits, currency, or field phrasing.
	infoSignalRE = regexp.MustCompile(`(?i)[0-9₹]|\b(my name|name is|i am|i'?m|salaried|self[- ]?employed|business|freelancer|pan|aadhaar|address|salary|income|earn|lakh|tenure|months?|years? old)\b`)
)

// KeywordClassifier is the default rule-based classifier. Order matters:
// cancel wins over everything, negotiation and rate questions win over
// the generic data-carrying check because they usually contain digits.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (c *KeywordClassifier) Classify(message string) Intent {
	text := strings.TrimSpace(message)
	if text == "" {
		return IntentOther
	}

	switch {
	case cancelRE.MatchString(text):
		return IntentCancel
	case negotiateRE.MatchString(text):
		return IntentNegotiate
	case rateInquiryRE.MatchString(text):
		return IntentRateInquiry
	case acceptRE.MatchString(text):
		return IntentAccept
	case infoSignalRE.MatchString(text):
		return IntentProvideInfo
	default:
		return IntentOther
	}
}
