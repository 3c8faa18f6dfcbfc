package model

// Day is one entry of the static day-content catalog.
type Day struct {
	Day         int    `json:"day"`
	Title       string `json:"title"`
	Phase       string `json:"phase"`
	Pillar      string `json:"pillar,omitempty"`
	Exercise    string `json:"exercise"`
	Description string `json:"description"`
	VideoURL    string `json:"videoUrl,omitempty"`
}

// Phase statuses reported in Progress.
const (
	PhaseDone     = "done"
	PhaseActive   = "active"
	PhaseUpcoming = "upcoming"
)

// PhaseProgress is the status of one program phase.
type PhaseProgress struct {
	Name     string `json:"name"`
	FirstDay int    `json:"first_day"`
	LastDay  int    `json:"last_day"`
	Status   string `json:"status"`
}

// HistoryEntry summarises one stored check-in for the progress view.
type HistoryEntry struct {
	Day       int  `json:"day"`
	Completed bool `json:"completed"`
	Stress    int  `json:"stress"`
	Sleep     int  `json:"sleep"`
}

// Progress is a participant's standing in the program.
type Progress struct {
	CurrentDay    int             `json:"current_day"`
	CompletedDays int             `json:"completed_days"`
	Streak        int             `json:"streak"`
	Percent       int             `json:"percent"`
	Phases        []PhaseProgress `json:"phases"`
	History       []HistoryEntry  `json:"history"`
}
