package classify

import "mailgroom/internal/model"

// ServiceInfo describes a well-known sending domain. The base priority
// replaces the category-derived score (subject and sender adjustments still
// apply on top), and the name feeds reasoning output and label generation.
type ServiceInfo struct {
	Name     string
	Category model.Category
	Priority int
}

// KnownServices is the closed domain table. Keys are registrable domains.
var KnownServices = map[string]ServiceInfo{
	// E-commerce
	"amazon.com": {Name: "Amazon", Category: model.CategoryReceipt, Priority: 70},
	"ebay.com":   {Name: "eBay", Category: model.CategoryReceipt, Priority: 70},

	// Social media
	"facebook.com": {Name: "Facebook", Category: model.CategoryNotification, Priority: 40},
	"twitter.com":  {Name: "Twitter", Category: model.CategoryNotification, Priority: 40},
	"linkedin.com": {Name: "LinkedIn", Category: model.CategoryNotification, Priority: 50},

	// Financial
	"paypal.com": {Name: "PayPal", Category: model.CategoryFinancial, Priority: 90},
	"stripe.com": {Name: "Stripe", Category: model.CategoryFinancial, Priority: 90},

	// Tech services
	"github.com": {Name: "GitHub", Category: model.CategoryNotification, Priority: 60},
	"gitlab.com": {Name: "GitLab", Category: model.CategoryNotification, Priority: 60},
}
