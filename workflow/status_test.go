package workflow

import "testing"

var allKinds = []Kind{
	KindExpertiseRequest,
	KindVideoConsultation,
	KindMedicationIntake,
	KindReminder,
	KindRCPMeeting,
}

func TestCanTransition_ListedEdges(t *testing.T) {
	cases := []struct {
		kind Kind
		from Status
		to   Status
	}{
		{KindExpertiseRequest, StatusPending, StatusAssigned},
		{KindExpertiseRequest, StatusAssigned, StatusInReview},
		{KindExpertiseRequest, StatusInReview, StatusCompleted},
		{KindExpertiseRequest, StatusPending, StatusCancelled},
		{KindExpertiseRequest, StatusPending, StatusExpired},
		{KindVideoConsultation, StatusScheduled, StatusInProgress},
		{KindVideoConsultation, StatusInProgress, StatusCompleted},
		{KindVideoConsultation, StatusScheduled, StatusNoShow},
		{KindVideoConsultation, StatusInProgress, StatusTechIssue},
		{KindMedicationIntake, StatusScheduled, StatusTaken},
		{KindMedicationIntake, StatusScheduled, StatusMissed},
		{KindMedicationIntake, StatusScheduled, StatusDelayed},
		{KindMedicationIntake, StatusDelayed, StatusTaken},
		{KindReminder, StatusPending, StatusSent},
		{KindReminder, StatusSent, StatusAcknowledged},
		{KindReminder, StatusPending, StatusExpired},
		{KindRCPMeeting, StatusScheduled, StatusInProgress},
		{KindRCPMeeting, StatusInProgress, StatusCompleted},
		{KindRCPMeeting, StatusScheduled, StatusPostponed},
		{KindRCPMeeting, StatusPostponed, StatusScheduled},
	}
	for _, c := range cases {
		if !CanTransition(c.kind, c.from, c.to) {
			t.Errorf("%s: expected %s -> %s to be legal", c.kind, c.from, c.to)
		}
	}
}

// Every (from, to) pair not listed in the graph must be rejected, including
// transitions from a state to itself.
func TestCanTransition_UnlistedPairsRejected(t *testing.T) {
	for _, kind := range allKinds {
		statuses := Statuses(kind)
		for _, from := range statuses {
			for _, to := range statuses {
				listed := false
				for _, allowed := range transitions[kind][from] {
					if allowed == to {
						listed = true
					}
				}
				got := CanTransition(kind, from, to)
				if got != listed {
					t.Errorf("%s: CanTransition(%s, %s) = %v, want %v", kind, from, to, got, listed)
				}
				if from == to && got {
					t.Errorf("%s: self-transition %s must be illegal", kind, from)
				}
			}
		}
	}
}

// Terminal states are absorbing: no edge leaves them.
func TestTerminalStatesAbsorbing(t *testing.T) {
	for _, kind := range allKinds {
		for _, term := range terminal[kind] {
			if !IsTerminal(kind, term) {
				t.Errorf("%s: expected %s terminal", kind, term)
			}
			for _, to := range Statuses(kind) {
				if CanTransition(kind, term, to) {
					t.Errorf("%s: terminal %s must not transition to %s", kind, term, to)
				}
			}
		}
	}
}

func TestInitialStatus(t *testing.T) {
	want := map[Kind]Status{
		KindExpertiseRequest:  StatusPending,
		KindVideoConsultation: StatusScheduled,
		KindMedicationIntake:  StatusScheduled,
		KindReminder:          StatusPending,
		KindRCPMeeting:        StatusScheduled,
	}
	for kind, status := range want {
		if got := InitialStatus(kind); got != status {
			t.Errorf("%s: initial status = %s, want %s", kind, got, status)
		}
	}
}

func TestInitialStatusNotTerminal(t *testing.T) {
	for _, kind := range allKinds {
		if IsTerminal(kind, InitialStatus(kind)) {
			t.Errorf("%s: initial status %s must not be terminal", kind, InitialStatus(kind))
		}
	}
}

func TestMilestoneFor(t *testing.T) {
	cases := []struct {
		kind   Kind
		target Status
		key    string
	}{
		{KindExpertiseRequest, StatusAssigned, "assigned_at"},
		{KindExpertiseRequest, StatusCompleted, "responded_at"},
		{KindVideoConsultation, StatusInProgress, "started_at"},
		{KindVideoConsultation, StatusCompleted, "ended_at"},
		{KindMedicationIntake, StatusTaken, "actual_time"},
		{KindReminder, StatusSent, "sent_at"},
		{KindReminder, StatusAcknowledged, "acknowledged_at"},
		{KindRCPMeeting, StatusInProgress, "actual_start_time"},
		{KindRCPMeeting, StatusCompleted, "actual_end_time"},
	}
	for _, c := range cases {
		key, ok := MilestoneFor(c.kind, c.target)
		if !ok || key != c.key {
			t.Errorf("MilestoneFor(%s, %s) = %q, %v; want %q", c.kind, c.target, key, ok, c.key)
		}
	}

	if _, ok := MilestoneFor(KindExpertiseRequest, StatusCancelled); ok {
		t.Errorf("expertise cancellation must not carry a milestone")
	}
	if _, ok := MilestoneFor(KindMedicationIntake, StatusMissed); ok {
		t.Errorf("missed intake must not stamp actual_time")
	}
}
