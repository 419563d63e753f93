package dto

// PolicyConfig mirrors the system_config policy keys.
type PolicyConfig struct {
	CheckinStart  string `json:"checkin_start" binding:"required"`
	CheckinEnd    string `json:"checkin_end" binding:"required"`
	CheckoutStart string `json:"checkout_start" binding:"required"`
	CheckoutEnd   string `json:"checkout_end" binding:"required"`
	ScanCooldown  *int   `json:"scan_cooldown" binding:"required"`
	ReaderID      string `json:"reader_id" binding:"required"`
}

type PolicyConfigResponse struct {
	PolicyConfig
	Reloaded bool   `json:"reloaded"`
	Message  string `json:"message,omitempty"`
}
