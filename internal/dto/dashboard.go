package dto

// DashboardSummary aggregates the counters shown on the portal landing page.
type DashboardSummary struct {
	WaitingLeaveRequests int `json:"waiting_leave_requests"`
	PendingAssignments   int `json:"pending_assignments"`
	AcceptedAssignments  int `json:"accepted_assignments"`
	SwappedAssignments   int `json:"swapped_assignments"`
	UpcomingExams        int `json:"upcoming_exams"`
	UnreadNotifications  int `json:"unread_notifications"`
	WorkloadMinutes      int `json:"workload_minutes"`
}
