package models

import "time"

type ActivityKind string

const (
	ActivityLeadCreated       ActivityKind = "lead_created"
	ActivityLeadUpdated       ActivityKind = "lead_updated"
	ActivityLeadDeleted       ActivityKind = "lead_deleted"
	ActivityCapabilityUsed    ActivityKind = "capability_used"
	ActivityMeetingBooked     ActivityKind = "meeting_booked"
	ActivityMeetingCancelled  ActivityKind = "meeting_cancelled"
	ActivityResearchCompleted ActivityKind = "research_completed"
)

type Activity struct {
	ID        string       `json:"id" db:"id"`
	Kind      ActivityKind `json:"kind" db:"kind"`
	SubjectID string       `json:"subject_id" db:"subject_id"`
	Detail    string       `json:"detail" db:"detail"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}
