// Package transport defines the request/response DTOs for the queues module.
package transport

// MemberResponse is one roster entry of a queue.
type MemberResponse struct {
	AdvisorID    string `json:"advisorId"`
	IsSupervisor bool   `json:"isSupervisor"`
	Online       bool   `json:"online"`
}

// QueueResponse is the public representation of a queue.
type QueueResponse struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	DistributionMode string           `json:"distributionMode"`
	Members          []MemberResponse `json:"members"`
}

// QueueListResponse wraps a list of queues.
type QueueListResponse struct {
	Queues []QueueResponse `json:"queues"`
}

// AddMemberRequest adds an advisor to a queue roster.
type AddMemberRequest struct {
	AdvisorID    string `json:"advisorId" binding:"required,uuid"`
	IsSupervisor bool   `json:"isSupervisor"`
}
