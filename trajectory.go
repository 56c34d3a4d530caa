package trajexec

import (
	"fmt"
	"slices"
	"time"

	"github.com/goliatone/go-errors"
)

const (
	ErrCodeTrajectoryNoJoints     = "TRAJECTORY_NO_JOINTS"
	ErrCodeTrajectoryNoPoints     = "TRAJECTORY_NO_POINTS"
	ErrCodeTrajectoryDimensions   = "TRAJECTORY_DIMENSION_MISMATCH"
	ErrCodeTrajectoryNonMonotonic = "TRAJECTORY_TIME_NOT_MONOTONIC"
)

// Waypoint is one timestamped sample of a trajectory. TimeFromStart is the
// offset relative to the trajectory start. Velocities, Accelerations and
// Effort are optional; when present they must match Positions in length.
type Waypoint struct {
	TimeFromStart time.Duration `json:"time_from_start" yaml:"time_from_start"`
	Positions     []float64     `json:"positions" yaml:"positions"`
	Velocities    []float64     `json:"velocities,omitempty" yaml:"velocities,omitempty"`
	Accelerations []float64     `json:"accelerations,omitempty" yaml:"accelerations,omitempty"`
	Effort        []float64     `json:"effort,omitempty" yaml:"effort,omitempty"`
}

// Clone returns a deep copy of the waypoint.
func (w Waypoint) Clone() Waypoint {
	w.Positions = slices.Clone(w.Positions)
	w.Velocities = slices.Clone(w.Velocities)
	w.Accelerations = slices.Clone(w.Accelerations)
	w.Effort = slices.Clone(w.Effort)
	return w
}

// Trajectory is a named joint set plus an ordered list of waypoints. The
// package treats trajectories supplied by the caller as immutable and clones
// them at every ownership boundary.
type Trajectory struct {
	JointNames []string   `json:"joint_names" yaml:"joint_names"`
	Points     []Waypoint `json:"points" yaml:"points"`
}

// Clone returns a deep copy. Cloning a nil trajectory yields nil.
func (t *Trajectory) Clone() *Trajectory {
	if t == nil {
		return nil
	}
	cp := &Trajectory{
		JointNames: slices.Clone(t.JointNames),
		Points:     make([]Waypoint, len(t.Points)),
	}
	for i, p := range t.Points {
		cp.Points[i] = p.Clone()
	}
	return cp
}

// Len returns the number of waypoints.
func (t *Trajectory) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Points)
}

// Duration returns the offset of the last waypoint, zero when empty.
func (t *Trajectory) Duration() time.Duration {
	if t.Len() == 0 {
		return 0
	}
	return t.Points[len(t.Points)-1].TimeFromStart
}

// Validate checks the structural invariants: a non-empty joint set, at least
// one waypoint, per-waypoint dimensions matching the joint set, and
// monotonically non-decreasing time offsets.
func (t *Trajectory) Validate() error {
	if t == nil || len(t.JointNames) == 0 {
		return errors.New("trajectory requires at least one joint", errors.CategoryValidation).
			WithTextCode(ErrCodeTrajectoryNoJoints)
	}
	if len(t.Points) == 0 {
		return errors.New("trajectory requires at least one waypoint", errors.CategoryValidation).
			WithTextCode(ErrCodeTrajectoryNoPoints)
	}

	joints := len(t.JointNames)
	prev := time.Duration(-1)
	for i, p := range t.Points {
		if len(p.Positions) != joints {
			return errors.New(
				fmt.Sprintf("waypoint %d has %d positions for %d joints", i, len(p.Positions), joints),
				errors.CategoryValidation,
			).WithTextCode(ErrCodeTrajectoryDimensions)
		}
		for name, field := range map[string][]float64{
			"velocities":    p.Velocities,
			"accelerations": p.Accelerations,
			"effort":        p.Effort,
		} {
			if len(field) != 0 && len(field) != joints {
				return errors.New(
					fmt.Sprintf("waypoint %d has %d %s for %d joints", i, len(field), name, joints),
					errors.CategoryValidation,
				).WithTextCode(ErrCodeTrajectoryDimensions)
			}
		}
		if p.TimeFromStart < prev {
			return errors.New(
				fmt.Sprintf("waypoint %d moves backwards in time (%s after %s)", i, p.TimeFromStart, prev),
				errors.CategoryValidation,
			).WithTextCode(ErrCodeTrajectoryNonMonotonic)
		}
		prev = p.TimeFromStart
	}
	return nil
}

// Goal is the dispatch payload handed to a Dispatcher. Tolerances left at
// zero mean controller defaults.
type Goal struct {
	Trajectory        *Trajectory
	GoalTimeTolerance time.Duration
}
