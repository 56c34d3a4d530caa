// Package trajfile reads and writes trajectory files, the artifact handed
// over by the motion planner. Files are YAML or JSON; time offsets use Go
// duration syntax ("250ms", "1.5s").
package trajfile

import (
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/goliatone/go-errors"
	trajexec "github.com/robokit/go-trajexec"
	"gopkg.in/yaml.v3"
)

type waypointDoc struct {
	TimeFromStart string    `json:"time_from_start" yaml:"time_from_start"`
	Positions     []float64 `json:"positions" yaml:"positions"`
	Velocities    []float64 `json:"velocities,omitempty" yaml:"velocities,omitempty"`
	Accelerations []float64 `json:"accelerations,omitempty" yaml:"accelerations,omitempty"`
	Effort        []float64 `json:"effort,omitempty" yaml:"effort,omitempty"`
}

type trajectoryDoc struct {
	JointNames []string      `json:"joint_names" yaml:"joint_names"`
	Points     []waypointDoc `json:"points" yaml:"points"`
}

// Parse decodes a trajectory document and validates it. YAML is a superset
// of JSON, so a single decode path covers both formats.
func Parse(data []byte) (*trajexec.Trajectory, error) {
	var doc trajectoryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "trajectory file is not valid YAML or JSON").
			WithTextCode("TRAJFILE_PARSE_FAILED")
	}

	traj := &trajexec.Trajectory{
		JointNames: doc.JointNames,
		Points:     make([]trajexec.Waypoint, 0, len(doc.Points)),
	}
	for i, p := range doc.Points {
		offset, err := time.ParseDuration(p.TimeFromStart)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryValidation, "waypoint has an invalid time offset").
				WithTextCode("TRAJFILE_BAD_OFFSET").
				WithMetadata(map[string]any{"waypoint": i, "time_from_start": p.TimeFromStart})
		}
		traj.Points = append(traj.Points, trajexec.Waypoint{
			TimeFromStart: offset,
			Positions:     p.Positions,
			Velocities:    p.Velocities,
			Accelerations: p.Accelerations,
			Effort:        p.Effort,
		})
	}
	if err := traj.Validate(); err != nil {
		return nil, err
	}
	return traj, nil
}

// Load reads and parses a trajectory file.
func Load(path string) (*trajexec.Trajectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "cannot read trajectory file").
			WithTextCode("TRAJFILE_READ_FAILED")
	}
	return Parse(data)
}

// EncodeJSON serializes a trajectory as an indented JSON document, the format
// used when exporting executed trajectories for diagnosis.
func EncodeJSON(traj *trajexec.Trajectory) ([]byte, error) {
	data, err := json.MarshalIndent(toDoc(traj), "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "cannot encode trajectory").
			WithTextCode("TRAJFILE_ENCODE_FAILED")
	}
	return data, nil
}

// EncodeYAML serializes a trajectory as a YAML document.
func EncodeYAML(traj *trajexec.Trajectory) ([]byte, error) {
	data, err := yaml.Marshal(toDoc(traj))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "cannot encode trajectory").
			WithTextCode("TRAJFILE_ENCODE_FAILED")
	}
	return data, nil
}

func toDoc(traj *trajexec.Trajectory) trajectoryDoc {
	doc := trajectoryDoc{
		JointNames: traj.JointNames,
		Points:     make([]waypointDoc, 0, traj.Len()),
	}
	for _, p := range traj.Points {
		doc.Points = append(doc.Points, waypointDoc{
			TimeFromStart: p.TimeFromStart.String(),
			Positions:     p.Positions,
			Velocities:    p.Velocities,
			Accelerations: p.Accelerations,
			Effort:        p.Effort,
		})
	}
	return doc
}
