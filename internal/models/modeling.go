package models

import (
	"strconv"
	"time"
)

// RunKind selects the point policy and commit behavior of a model run.
type RunKind string

const (
	RunBase       RunKind = "Base"
	RunRefinement RunKind = "Refinement"
	RunCheck      RunKind = "Check"
	RunTimeChange RunKind = "TimeChange"
	RunHysteresis RunKind = "Hysteresis"
	RunBoost      RunKind = "Boost"
	RunBatch      RunKind = "Batch"
)

// Valid reports whether k is a known run kind.
func (k RunKind) Valid() bool {
	switch k {
	case RunBase, RunRefinement, RunCheck, RunTimeChange, RunHysteresis, RunBoost, RunBatch:
		return true
	}
	return false
}

// CommitsPerPoint reports whether solved points go into the mount as they are measured.
func (k RunKind) CommitsPerPoint() bool {
	return k == RunBase || k == RunRefinement
}

// UpdatesModel reports whether the run ends by saving the mount's model.
func (k RunKind) UpdatesModel() bool {
	return k == RunBase || k == RunRefinement || k == RunBoost
}

// FileSuffix names the result file written at the end of the run.
func (k RunKind) FileSuffix() string {
	switch k {
	case RunBase:
		return "_base.dat"
	case RunRefinement:
		return "_refinement.dat"
	case RunCheck:
		return "_check.dat"
	case RunTimeChange:
		return "_timechange.dat"
	case RunHysteresis:
		return "_hysterese.dat"
	case RunBoost:
		return "_boost.dat"
	default:
		return "_batch.dat"
	}
}

// TargetPoint is one requested model position.
type TargetPoint struct {
	Azimuth  float64 `json:"azimuth" toml:"azimuth"`
	Altitude float64 `json:"altitude" toml:"altitude"`
	// Active is cleared once the point has been captured.
	Active bool `json:"active" toml:"active"`
	// Solve false means the point is only slewed through.
	Solve bool `json:"solve" toml:"solve"`
}

// PointResult is the record of one measured point. Field names double as
// the column names of the result file.
type PointResult struct {
	Index                 int     `json:"Index"`
	Azimuth               float64 `json:"Azimuth"`
	Altitude              float64 `json:"Altitude"`
	RaJ2000               float64 `json:"RaJ2000"`
	DecJ2000              float64 `json:"DecJ2000"`
	RaJNow                float64 `json:"RaJNow"`
	DecJNow               float64 `json:"DecJNow"`
	RaJ2000Solved         float64 `json:"RaJ2000Solved"`
	DecJ2000Solved        float64 `json:"DecJ2000Solved"`
	RaJNowSolved          float64 `json:"RaJNowSolved"`
	DecJNowSolved         float64 `json:"DecJNowSolved"`
	Pierside              string  `json:"Pierside"`
	LocalSiderealTime     float64 `json:"LocalSiderealTime"` // hours
	RefractionTemperature float64 `json:"RefractionTemperature"`
	RefractionPressure    float64 `json:"RefractionPressure"`
	RaError               float64 `json:"RaError"`  // arcsec
	DecError              float64 `json:"DecError"` // arcsec
	Scale                 float64 `json:"Scale"`
	Angle                 float64 `json:"Angle"`
	TimeToSolve           float64 `json:"TimeToSolve"`
	ImagePath             string  `json:"ImagePath"`
	Solved                bool    `json:"Solved"`
	Committed             bool    `json:"Committed"`
	AlignmentIndex        int     `json:"AlignmentIndex"`
	Message               string  `json:"Message"`
}

// RunState is the orchestrator phase.
type RunState string

const (
	StateIdle       RunState = "IDLE"
	StatePreparing  RunState = "PREPARING"
	StateSlewing    RunState = "SLEWING"
	StateSettling   RunState = "SETTLING"
	StateCapturing  RunState = "CAPTURING"
	StateSolving    RunState = "SOLVING"
	StateCommitting RunState = "COMMITTING"
	StateCancelled  RunState = "CANCELLED"
)

// ModelRun is the lifecycle record of one run.
type ModelRun struct {
	ID         string        `json:"id"`
	Kind       RunKind       `json:"kind"`
	Points     []TargetPoint `json:"points,omitempty"`
	Results    []PointResult `json:"results,omitempty"`
	ImageDir   string        `json:"image_dir"`
	ResultFile string        `json:"result_file,omitempty"`
	KeepImages bool          `json:"keep_images"`
	Cancelled  bool          `json:"cancelled"`
	Committed  int           `json:"committed"`
	Failed     int           `json:"failed"`
	Message    string        `json:"message,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
}

// Progress is what observers see of the active run.
type Progress struct {
	RunID           string   `json:"run_id,omitempty"`
	Kind            RunKind  `json:"kind,omitempty"`
	State           RunState `json:"state"`
	Running         bool     `json:"running"`
	Current         int      `json:"current"`
	Total           int      `json:"total"`
	Percent         float64  `json:"percent"`
	TimeLeft        string   `json:"time_left"` // mm:ss or --:--
	SettleRemaining int      `json:"settle_remaining"`
	Committed       int      `json:"committed"`
	Failed          int      `json:"failed"`
}

// Status renders the "i of n" counter shown to the operator.
func (p Progress) Status() string {
	if p.Total == 0 {
		return "-- of --"
	}
	return strconv.Itoa(p.Current) + " of " + strconv.Itoa(p.Total)
}
