package domain

type PilotStatus string

const (
	PilotStatusAvailable PilotStatus = "available"
	PilotStatusBusy      PilotStatus = "busy"
	PilotStatusOffline   PilotStatus = "offline"
)

type Pilot struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Phone         string      `json:"phone"`
	Email         string      `json:"email"`
	Status        PilotStatus `json:"status"`
	Online        bool        `json:"online"`
	Rating        float64     `json:"rating"`
	DeliveryCount int         `json:"delivery_count"`
	Lat           *float64    `json:"lat,omitempty"`
	Lng           *float64    `json:"lng,omitempty"`
}

// Assignable reports whether the pilot can take a new booking right now.
func (p Pilot) Assignable() bool {
	return p.Online && p.Status == PilotStatusAvailable
}

// PilotFilter narrows a pilot listing. Nil fields do not filter.
type PilotFilter struct {
	Status *PilotStatus
	Online *bool
}

// CandidateFilter selects pilots eligible for assignment.
func CandidateFilter() PilotFilter {
	status := PilotStatusAvailable
	online := true
	return PilotFilter{Status: &status, Online: &online}
}

func ParsePilotStatus(s string) (PilotStatus, bool) {
	switch PilotStatus(s) {
	case PilotStatusAvailable, PilotStatusBusy, PilotStatusOffline:
		return PilotStatus(s), true
	default:
		return "", false
	}
}
