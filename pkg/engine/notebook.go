// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package engine

import (
	"encoding/json"
	"io/ioutil"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Notebooks are plain JSON.  We parse them generically so rewriting a cell never disturbs the
// fields we do not understand.

// cleanNotebook sanitizes a collected notebook in place: nbgrader chokes on duplicate grading cell
// ids (students sometimes copy-paste answer cells), so the grading metadata is stripped from every
// duplicate, keeping the first occurrence.  Returns the ids that were repaired.
func cleanNotebook(path string) ([]string, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read notebook %v", path)
	}
	var nb map[string]interface{}
	if err = json.Unmarshal(b, &nb); err != nil {
		return nil, errors.Wrapf(err, "could not parse notebook %v", path)
	}

	cells, _ := nb["cells"].([]interface{})
	seen := make(map[string]bool)
	var repaired []string
	for _, c := range cells {
		cell, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		meta, ok := cell["metadata"].(map[string]interface{})
		if !ok {
			continue
		}
		nbg, ok := meta["nbgrader"].(map[string]interface{})
		if !ok {
			continue
		}
		id, ok := nbg["grade_id"].(string)
		if !ok {
			continue
		}
		if seen[id] {
			glog.Warningf("notebook %v has a duplicate grading cell '%v'; stripping its grading metadata", path, id)
			delete(meta, "nbgrader")
			repaired = append(repaired, id)
		} else {
			seen[id] = true
		}
	}

	out, err := json.Marshal(nb)
	if err != nil {
		return nil, errors.Wrapf(err, "could not serialize notebook %v", path)
	}
	if err = ioutil.WriteFile(path, out, 0644); err != nil {
		return nil, errors.Wrapf(err, "could not write notebook %v", path)
	}
	return repaired, nil
}

// notebookMaxScore sums the point values across the grading cells of a release notebook.  nbgrader
// does not expose a max score, so it is recomputed from the notebook itself.
func notebookMaxScore(path string) (float64, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "could not read release notebook %v", path)
	}
	var nb struct {
		Cells []struct {
			Metadata struct {
				Nbgrader *struct {
					Points float64 `json:"points"`
				} `json:"nbgrader"`
			} `json:"metadata"`
		} `json:"cells"`
	}
	if err = json.Unmarshal(b, &nb); err != nil {
		return 0, errors.Wrapf(err, "could not parse release notebook %v", path)
	}
	var pts float64
	for _, cell := range nb.Cells {
		if cell.Metadata.Nbgrader != nil {
			pts += cell.Metadata.Nbgrader.Points
		}
	}
	if pts <= 0 {
		return 0, errors.Errorf("release notebook %v has no point-carrying cells", path)
	}
	return pts, nil
}
