package conversation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/credgenhq/credgen/internal/session"
)

// fieldPrompts is what the assistant asks when a field is missing.
var fieldPrompts = map[string]string{
	session.FieldName:           "May I have your full name?",
	session.FieldAge:            "How old are you?",
	session.FieldLoanAmount:     "How much would you like to borrow? (between ₹50,000 and ₹50,00,000)",
	session.FieldTenureMonths:   "Over how many months would you like to repay? (12 to 60)",
	session.FieldPurpose:        "What is the loan for? (e.g. wedding, education, home renovation)",
	session.FieldAnnualIncome:   "What is your annual income?",
	session.FieldEmploymentType: "Are you salaried or self-employed?",
	session.FieldPAN:            "Please share your PAN (format: AAAAA9999A).",
	session.FieldAadhaar:        "Please share your 12-digit Aadhaar number.",
	session.FieldAddress:        "Please share your current residential address.",
}

const (
	msgGreeting = "Welcome to CredGen! I can help you apply for a personal loan in a few minutes. "

	msgKYCIntro = "Thank you! Your basic details are complete. Now I need to verify your identity. "

	msgFraudPending = "Thanks, your details are in. I'm running a quick verification on your application now."

	msgUnderwritingPending = "Verification cleared. Assessing your application for approval."

	msgDocumentationPending = "Preparing your sanction letter now."

	msgHelp = "I didn't quite catch that. "

	msgCancelled = "No problem, I've closed your application. You're welcome back any time."

	msgDone = "Your loan is sanctioned and your letter is ready. Congratulations, and thank you for choosing CredGen!"
)

func promptFor(field string) string {
	return fieldPrompts[field]
}

func rejectionMessage(reason string) string {
	switch reason {
	case ReasonFraudRisk:
		return "I'm sorry, we are unable to proceed with your application after our verification checks. This decision is final for this application."
	case ReasonRiskTooHigh:
		return "I'm sorry, we are unable to approve a loan on these terms at this time. You may re-apply after 90 days."
	case ReasonCancelled:
		return msgCancelled
	default:
		return "I'm sorry, we are unable to proceed with your application."
	}
}

func offerMessage(name string, offer *session.Offer) string {
	greeting := "Great news"
	if name != "" {
		greeting = "Great news, " + firstName(name)
	}
	return fmt.Sprintf(
		"%s! Your loan is approved: %s for %d months at %.2f%% p.a. That's an EMI of %s/month. Would you like to accept, or shall we discuss the rate?",
		greeting, formatINR(offer.Principal), offer.TenureMonths, offer.Rate, formatINREMI(offer.EMI),
	)
}

func counterOfferMessage(offer *session.Offer, roundsLeft int) string {
	msg := fmt.Sprintf(
		"Let me see what I can do... I can bring the rate down to %.2f%% p.a., making your EMI %s/month.",
		offer.Rate, formatINREMI(offer.EMI),
	)
	if roundsLeft <= 0 {
		return msg + " This is the best rate I can offer."
	}
	return msg + " Shall we proceed?"
}

func finalOfferMessage(offer *session.Offer) string {
	return fmt.Sprintf(
		"%.2f%% p.a. with an EMI of %s/month is my final offer — I can't go lower. Would you like to accept?",
		offer.Rate, formatINREMI(offer.EMI),
	)
}

func rateInquiryMessage(offer *session.Offer) string {
	return fmt.Sprintf(
		"Your current offer stands at %s for %d months at %.2f%% p.a., with an EMI of %s/month.",
		formatINR(offer.Principal), offer.TenureMonths, offer.Rate, formatINREMI(offer.EMI),
	)
}

func firstName(full string) string {
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}

// formatINR renders rupees with Indian digit grouping: the last three
// digits form one group, every group before that has two (₹12,34,567).
func formatINR(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := strconv.FormatInt(amount, 10)
	if len(s) > 3 {
		head, tail := s[:len(s)-3], s[len(s)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		groups = append([]string{head}, groups...)
		s = strings.Join(groups, ",") + "," + tail
	}
	if neg {
		return "-₹" + s
	}
	return "₹" + s
}

func formatINREMI(emi float64) string {
	return formatINR(int64(math.Round(emi)))
}
