package payment

// Intent is the external provider's handle for one attempt to collect
// payment. Its status lifecycle is independent of the order's status.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// Intent statuses the checkout flow cares about. The provider defines
// more; anything other than succeeded is treated as not completed.
const (
	StatusRequiresPaymentMethod = "requires_payment_method"
	StatusRequiresConfirmation  = "requires_confirmation"
	StatusProcessing            = "processing"
	StatusSucceeded             = "succeeded"
	StatusCanceled              = "canceled"
)

// TestPaymentMethod is the provider's always-approving test card. Used
// only by the simulated confirm path outside production.
const TestPaymentMethod = "pm_card_visa"
