package types

import "time"

// EngineState is the operator-controlled portion of the engine's state,
// persisted so a restart resumes with the last applied settings instead of
// the environment defaults.
type EngineState struct {
	Enabled        bool      `json:"enabled"`
	Mode           string    `json:"mode"`
	Shares         float64   `json:"shares"`
	SumTarget      float64   `json:"sumTarget"`
	MoveThreshold  float64   `json:"moveThreshold"`
	MoveWindowSec  int       `json:"moveWindowSec"`
	WatchWindowMin int       `json:"watchWindowMin"`
	FeeBps         int       `json:"feeBps"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
