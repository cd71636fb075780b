package workflow

// Kind identifies a workflow entity type tracked by the engine.
type Kind string

const (
	KindExpertiseRequest  Kind = "expertise_request"
	KindVideoConsultation Kind = "video_consultation"
	KindMedicationIntake  Kind = "medication_intake"
	KindReminder          Kind = "reminder"
	KindRCPMeeting        Kind = "rcp_meeting"
)

// Status is one value of an entity kind's state enumeration.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusAssigned     Status = "ASSIGNED"
	StatusInReview     Status = "IN_REVIEW"
	StatusCompleted    Status = "COMPLETED"
	StatusCancelled    Status = "CANCELLED"
	StatusExpired      Status = "EXPIRED"
	StatusScheduled    Status = "SCHEDULED"
	StatusInProgress   Status = "IN_PROGRESS"
	StatusNoShow       Status = "NO_SHOW"
	StatusTechIssue    Status = "TECHNICAL_ISSUE"
	StatusTaken        Status = "TAKEN"
	StatusMissed       Status = "MISSED"
	StatusDelayed      Status = "DELAYED"
	StatusSkipped      Status = "SKIPPED"
	StatusSent         Status = "SENT"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusPostponed    Status = "POSTPONED"
)

// transitions is the directed transition graph, keyed by kind and source
// status. A pair absent from the table is illegal, including self-transitions.
var transitions = map[Kind]map[Status][]Status{
	KindExpertiseRequest: {
		StatusPending:  {StatusAssigned, StatusCancelled, StatusExpired},
		StatusAssigned: {StatusInReview, StatusCancelled, StatusExpired},
		StatusInReview: {StatusCompleted, StatusCancelled, StatusExpired},
	},
	KindVideoConsultation: {
		StatusScheduled:  {StatusInProgress, StatusCancelled, StatusNoShow, StatusTechIssue},
		StatusInProgress: {StatusCompleted, StatusCancelled, StatusNoShow, StatusTechIssue},
	},
	KindMedicationIntake: {
		StatusScheduled: {StatusTaken, StatusMissed, StatusDelayed, StatusSkipped},
		StatusDelayed:   {StatusTaken, StatusMissed, StatusSkipped},
	},
	KindReminder: {
		StatusPending: {StatusSent, StatusExpired},
		StatusSent:    {StatusAcknowledged, StatusExpired},
	},
	KindRCPMeeting: {
		StatusScheduled:  {StatusInProgress, StatusCancelled, StatusPostponed},
		StatusInProgress: {StatusCompleted, StatusCancelled},
		StatusPostponed:  {StatusScheduled, StatusCancelled},
	},
}

var terminal = map[Kind][]Status{
	KindExpertiseRequest:  {StatusCompleted, StatusCancelled, StatusExpired},
	KindVideoConsultation: {StatusCompleted, StatusCancelled, StatusNoShow, StatusTechIssue},
	KindMedicationIntake:  {StatusTaken, StatusMissed, StatusSkipped},
	KindReminder:          {StatusAcknowledged, StatusExpired},
	KindRCPMeeting:        {StatusCompleted, StatusCancelled},
}

var initial = map[Kind]Status{
	KindExpertiseRequest:  StatusPending,
	KindVideoConsultation: StatusScheduled,
	KindMedicationIntake:  StatusScheduled,
	KindReminder:          StatusPending,
	KindRCPMeeting:        StatusScheduled,
}

// milestones maps a (kind, target status) edge to the milestone timestamp
// stamped the first time the entity enters that status.
var milestones = map[Kind]map[Status]string{
	KindExpertiseRequest: {
		StatusAssigned:  "assigned_at",
		StatusCompleted: "responded_at",
	},
	KindVideoConsultation: {
		StatusInProgress: "started_at",
		StatusCompleted:  "ended_at",
	},
	KindMedicationIntake: {
		StatusTaken: "actual_time",
	},
	KindReminder: {
		StatusSent:         "sent_at",
		StatusAcknowledged: "acknowledged_at",
	},
	KindRCPMeeting: {
		StatusInProgress: "actual_start_time",
		StatusCompleted:  "actual_end_time",
	},
}

// CanTransition reports whether the transition graph for kind contains the
// edge from -> to.
func CanTransition(kind Kind, from, to Status) bool {
	for _, allowed := range transitions[kind][from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status is absorbing for kind: no edge leaves it.
func IsTerminal(kind Kind, status Status) bool {
	for _, s := range terminal[kind] {
		if s == status {
			return true
		}
	}
	return false
}

// InitialStatus returns the status a newly created entity of kind starts in.
func InitialStatus(kind Kind) Status {
	return initial[kind]
}

// MilestoneFor returns the milestone key stamped when an entity of kind
// enters target, or false when the edge carries no milestone.
func MilestoneFor(kind Kind, target Status) (string, bool) {
	key, ok := milestones[kind][target]
	return key, ok
}

// Statuses returns every status reachable for kind, initial state included.
// The result is used by exhaustive legality checks and by validation layers.
func Statuses(kind Kind) []Status {
	seen := map[Status]bool{initial[kind]: true}
	out := []Status{initial[kind]}
	for from, tos := range transitions[kind] {
		for _, s := range append([]Status{from}, tos...) {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
