package domain

import "time"

type AuditAction string

const (
	AuditAdmitted         AuditAction = "admitted"
	AuditDenied           AuditAction = "denied"
	AuditWaitlisted       AuditAction = "waitlisted"
	AuditPromoted         AuditAction = "promoted"
	AuditReleased         AuditAction = "released"
	AuditForceAdmitted    AuditAction = "force_admitted"
	AuditWithdrawn        AuditAction = "withdrawn"
	AuditWaitlistExpired  AuditAction = "waitlist_expired"
	AuditPromotionSkipped AuditAction = "promotion_skipped"
	AuditDeliveryFailed   AuditAction = "delivery_failed"
)

type ActorKind string

const (
	ActorRequester ActorKind = "requester"
	ActorAdmin     ActorKind = "administrator"
	ActorSystem    ActorKind = "system"
)

type Actor struct {
	Kind ActorKind
	ID   string
}

func SystemActor() Actor {
	return Actor{Kind: ActorSystem, ID: "registrar"}
}

// AuditRecord is an immutable fact about one state transition. Seq is
// assigned by the store and totally orders records that share a timestamp.
type AuditRecord struct {
	Seq         int64
	SectionID   string
	RequesterID string
	Action      AuditAction
	OldStatus   string
	NewStatus   string
	Actor       Actor
	Reason      string
	At          time.Time
}
