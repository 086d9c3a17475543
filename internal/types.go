package internal

type ShiftType string

const (
	ShiftDay   ShiftType = "day"
	ShiftNight ShiftType = "night"
)

type AssignmentStatus string

const (
	StatusAssigned   AssignmentStatus = "assigned"
	StatusInProgress AssignmentStatus = "in_progress"
	StatusCompleted  AssignmentStatus = "completed"
	StatusCancelled  AssignmentStatus = "cancelled"
)

func ValidAssignmentStatus(s AssignmentStatus) bool {
	switch s {
	case StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

type User struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	FullName   string `json:"fullName,omitempty"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

type AssignmentFields struct {
	OperatorID      int64            `json:"operatorId"`
	ShiftDate       string           `json:"shiftDate"`
	ShiftType       ShiftType        `json:"shiftType"`
	TaskDescription string           `json:"taskDescription"`
	MachineNumber   string           `json:"machineNumber"`
	DetailName      string           `json:"detailName"`
	CustomerName    string           `json:"customerName"`
	PlannedQuantity int              `json:"plannedQuantity"`
	TechCardID      *int64           `json:"techCardId"`
	Status          AssignmentStatus `json:"status"`
}

type Assignment struct {
	ID int64 `json:"id"`
	AssignmentFields
	CreatedAt string `json:"createdAt,omitempty"`

	// OperatorUsername is filled in for reporting only and is never persisted.
	OperatorUsername string `json:"operatorUsername,omitempty"`
}

type AssignmentFilter struct {
	ShiftDate  string
	OperatorID int64
	Status     AssignmentStatus
	Limit      int
}

type ImportRun struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	FileName   string `json:"fileName"`
	UploadedBy string `json:"uploadedBy"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	Error      string `json:"error,omitempty"`
	ReportJSON string `json:"-"`
	CreatedAt  string `json:"createdAt"`
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
