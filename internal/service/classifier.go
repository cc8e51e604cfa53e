package service

import (
	"strings"

	"github.com/Camus10737/warket/internal/model"
)

// Classification is the routing decision for one inbound message.
type Classification struct {
	Escalate bool
	Reason   model.EscalationReason
}

// Keyword families checked in priority order. A defect or refund always
// outranks a haggle, a haggle outranks a delivery question. Buyers write in
// English or French, often both in one message.
var (
	defectKeywords = []string{
		"broken", "damaged", "defect", "refund", "return", "not working",
		"wrong item", "complaint",
		"casse", "abime", "defectueux", "rembourse", "remboursement", "retour",
	}
	discountKeywords = []string{
		"discount", "cheaper", "best price", "lower the price", "promo",
		"negotiate", "too expensive",
		"remise", "reduction", "moins cher", "trop cher", "rabais",
	}
	deliveryKeywords = []string{
		"delivery", "deliver", "shipping", "ship my", "arrive", "tracking",
		"my order", "address",
		"livraison", "livrer", "expedition", "adresse", "quand",
	}
)

const (
	complexityMaxLen       = 200
	complexityMaxQuestions = 2
)

// classify routes an inbound buyer message. Matching is plain substring
// search over the lowercased text.
func classify(text string) Classification {
	lowered := strings.ToLower(text)

	for _, kw := range defectKeywords {
		if strings.Contains(lowered, kw) {
			return Classification{Escalate: true, Reason: model.ReasonProductDefect}
		}
	}
	for _, kw := range discountKeywords {
		if strings.Contains(lowered, kw) {
			return Classification{Escalate: true, Reason: model.ReasonDiscount}
		}
	}
	for _, kw := range deliveryKeywords {
		if strings.Contains(lowered, kw) {
			return Classification{Escalate: true, Reason: model.ReasonDelivery}
		}
	}
	if len(text) > complexityMaxLen || strings.Count(text, "?") > complexityMaxQuestions {
		return Classification{Escalate: true, Reason: model.ReasonComplexity}
	}
	return Classification{}
}
