package handler

import (
	"time"

	"gatehouse/internal/visit"
)

// visitResponse is the VisitSummary shape returned by every endpoint.
type visitResponse struct {
	ID              string     `json:"id"`
	SessionToken    string     `json:"session_token"`
	VisitorName     string     `json:"visitor_name"`
	VisitorCompany  string     `json:"visitor_company,omitempty"`
	VisitorPhone    string     `json:"visitor_phone,omitempty"`
	VisitorEmail    string     `json:"visitor_email,omitempty"`
	HostID          string     `json:"host_id"`
	Purpose         string     `json:"purpose,omitempty"`
	Location        string     `json:"location"`
	Status          string     `json:"status"`
	ExpectedDate    *time.Time `json:"expected_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CheckInAt       *time.Time `json:"check_in_at,omitempty"`
	CheckOutAt      *time.Time `json:"check_out_at,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
}

type createdResponse struct {
	visitResponse
	// Artifact is the encoded bundle the kiosk renders as a QR code.
	Artifact string `json:"artifact"`
}

type eventResponse struct {
	VisitID    string    `json:"visit_id"`
	Type       string    `json:"type"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func toVisitResponse(v *visit.Visit) visitResponse {
	return visitResponse{
		ID:              v.ID.String(),
		SessionToken:    v.SessionToken,
		VisitorName:     v.VisitorName,
		VisitorCompany:  v.VisitorCompany,
		VisitorPhone:    v.VisitorPhone,
		VisitorEmail:    v.VisitorEmail,
		HostID:          v.HostID.String(),
		Purpose:         v.Purpose,
		Location:        string(v.Location),
		Status:          string(v.Status),
		ExpectedDate:    v.ExpectedDate,
		CreatedAt:       v.CreatedAt,
		CheckInAt:       v.CheckInAt,
		CheckOutAt:      v.CheckOutAt,
		ApprovedAt:      v.ApprovedAt,
		RejectedAt:      v.RejectedAt,
		RejectionReason: v.RejectionReason,
	}
}

func toCreatedResponse(created *visit.CreatedVisit) createdResponse {
	return createdResponse{
		visitResponse: toVisitResponse(created.Visit),
		Artifact:      created.Artifact.Encode(),
	}
}

func toVisitList(visits []*visit.Visit) []visitResponse {
	out := make([]visitResponse, 0, len(visits))
	for _, v := range visits {
		out = append(out, toVisitResponse(v))
	}
	return out
}

func toEventList(events []visit.CheckEvent) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		resp := eventResponse{
			VisitID:    e.VisitID.String(),
			Type:       string(e.Type),
			OccurredAt: e.OccurredAt,
		}
		if e.ActorID != nil {
			resp.ActorID = e.ActorID.String()
		}
		out = append(out, resp)
	}
	return out
}
