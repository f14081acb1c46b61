package models

// TeamStanding summarizes one team. SyncedDistance is the lowest member
// total: a team only advances as far as its slowest in-cadence rower.
type TeamStanding struct {
	TeamID         int     `json:"team_id"`
	TotalDistance  float64 `json:"total_distance"`
	SyncedDistance float64 `json:"synced_distance"`
	Members        int     `json:"members"`
}
