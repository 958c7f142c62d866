package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerSubmit          Trigger = "SUBMIT"
	TriggerRoute           Trigger = "ROUTE"
	TriggerAdvance         Trigger = "ADVANCE"
	TriggerApprove         Trigger = "APPROVE"
	TriggerReject          Trigger = "REJECT"
	TriggerRequestRevision Trigger = "REQUEST_REVISION"
	TriggerResubmit        Trigger = "RESUBMIT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
