package dto

// Reader control actions carried on the control subject.
const (
	ActionStart        = "start"
	ActionStop         = "stop"
	ActionStatus       = "status"
	ActionClearToday   = "clear_today"
	ActionReloadPolicy = "reload_policy"
	ActionScan         = "scan"
)

// ReaderCommand is a control request sent to the ingestor.
type ReaderCommand struct {
	Action   string `json:"action"`
	RFIDUID  string `json:"rfid_uid,omitempty"`  // scan only
	DeviceID string `json:"device_id,omitempty"` // scan only
}

// ReaderReply is the ingestor's answer to a ReaderCommand.
type ReaderReply struct {
	Success       bool             `json:"success"`
	Message       string           `json:"message"`
	Running       bool             `json:"running"`
	Cleared       int              `json:"cleared,omitempty"`
	PolicyVersion uint64           `json:"policy_version,omitempty"`
	Scan          *ScanLogResponse `json:"scan,omitempty"`
}

type ReaderStatusResponse struct {
	Running bool `json:"running"`
}

type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ScanRequest struct {
	RFIDUID  string `json:"rfid_uid" binding:"required"`
	DeviceID string `json:"device_id"`
}
