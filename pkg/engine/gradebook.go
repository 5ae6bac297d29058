// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/gradeflow/gradeflow/pkg/course"
)

// The gradebook is nbgrader's sqlite database inside the grader repo.  Rather than parse the
// database directly, we query it with nbgrader's own API inside the grading container, the same
// environment that wrote it.
const gradebookProbe = `python -c "` +
	`import json; from nbgrader.api import Gradebook; ` +
	`gb = Gradebook('sqlite:///gradebook.db'); ` +
	`s = gb.find_submission('%s', '%s'); ` +
	`print('GRADEBOOK ' + json.dumps({'score': s.score, 'needs_manual_grade': s.needs_manual_grade})); ` +
	`gb.close()"`

type gradebookRecord struct {
	Score            float64 `json:"score"`
	NeedsManualGrade bool    `json:"needs_manual_grade"`
}

// lookupGradebook reads the (assignment, student) record from the grader's gradebook.
func (e *Engine) lookupGradebook(s *course.Submission) (*gradebookRecord, error) {
	cmd := fmt.Sprintf(gradebookProbe, s.AssignmentName, e.Config.StudentNamePrefix+s.StudentID)
	out, err := e.Runner.Run(cmd, e.graderRepoPath(s.Grader))
	if err != nil {
		return nil, errors.Wrapf(err, "could not query the gradebook for %v", s.Key())
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "GRADEBOOK ") {
			var rec gradebookRecord
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "GRADEBOOK ")), &rec); err != nil {
				return nil, errors.Wrapf(err, "could not parse the gradebook record for %v", s.Key())
			}
			return &rec, nil
		}
	}
	return nil, errors.Errorf("the gradebook query for %v produced no record", s.Key())
}
