// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

// Package canvas implements the thin, stateless LMS client the workflow engine drives.  All calls
// are plain Canvas REST requests; transient failures are retried a few times before surfacing.
package canvas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/golang/glog"
	"github.com/google/go-querystring/query"
	"github.com/pkg/errors"

	"github.com/gradeflow/gradeflow/pkg/course"
)

// acceptHeader asks Canvas to serialize every id as a string, so large ids survive JSON decoding.
const acceptHeader = "application/json+canvas-string-ids"

// Client talks to one Canvas course.
type Client struct {
	host     string // the API host, no protocol, no trailing slash.
	courseID string
	token    string
	dryRun   bool
	http     *http.Client
}

// New creates a Canvas client for a course.  The host may carry a protocol prefix or trailing
// slash; both are stripped.
func New(host string, courseID string, token string, dryRun bool) *Client {
	host = regexp.MustCompile(`^https?://`).ReplaceAllString(host, "")
	host = strings.TrimRight(host, "/")
	return &Client{
		host:     host,
		courseID: courseID,
		token:    token,
		dryRun:   dryRun,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// GetCourseInfo fetches the course-level record.
func (c *Client) GetCourseInfo() (*course.Info, error) {
	var raw struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		CourseCode string `json:"course_code"`
		TimeZone   string `json:"time_zone"`
	}
	if err := c.getJSON(c.coursePath(""), nil, &raw); err != nil {
		return nil, errors.Wrap(err, "could not fetch course info")
	}
	return &course.Info{CanvasID: raw.ID, Name: raw.Name, Code: raw.CourseCode, TimeZone: raw.TimeZone}, nil
}

// GetStudents fetches the active and inactive student roster.
func (c *Client) GetStudents() ([]*course.Person, error) {
	return c.getEnrollments("StudentEnrollment")
}

// GetTAs fetches the teaching assistant roster.
func (c *Client) GetTAs() ([]*course.Person, error) {
	return c.getEnrollments("TaEnrollment")
}

// GetInstructors fetches the instructor roster.
func (c *Client) GetInstructors() ([]*course.Person, error) {
	return c.getEnrollments("TeacherEnrollment")
}

// GetFakeStudents fetches the LMS's synthetic "student view" test students.
func (c *Client) GetFakeStudents() ([]*course.Person, error) {
	return c.getEnrollments("StudentViewEnrollment")
}

type enrollment struct {
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
	EnrollmentState string     `json:"enrollment_state"`
	User            struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		SortableName string `json:"sortable_name"`
		SISUserID    string `json:"sis_user_id"`
	} `json:"user"`
}

type enrollmentParams struct {
	Type    []string `url:"type[]"`
	State   []string `url:"state[]"`
	PerPage int      `url:"per_page"`
}

func (c *Client) getEnrollments(kind string) ([]*course.Person, error) {
	params := enrollmentParams{
		Type:    []string{kind},
		State:   []string{"active", "inactive"},
		PerPage: 100,
	}
	var people []*course.Person
	err := c.getPaged(c.coursePath("enrollments"), params, func(page []byte) error {
		var enrs []enrollment
		if err := json.Unmarshal(page, &enrs); err != nil {
			return err
		}
		for _, e := range enrs {
			people = append(people, &course.Person{
				CanvasID:     e.User.ID,
				SISID:        e.User.SISUserID,
				Name:         e.User.Name,
				SortableName: e.User.SortableName,
				RegCreated:   e.CreatedAt,
				RegUpdated:   e.UpdatedAt,
				Status:       e.EnrollmentState,
			})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not fetch %v roster", kind)
	}
	return people, nil
}

type assignmentParams struct {
	Include []string `url:"include[]"`
	PerPage int      `url:"per_page"`
}

type rawAssignment struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	PointsPossible float64        `json:"points_possible"`
	UnlockAt       *time.Time     `json:"unlock_at"`
	DueAt          *time.Time     `json:"due_at"`
	LockAt         *time.Time     `json:"lock_at"`
	Overrides      []rawOverride  `json:"overrides"`
}

type rawOverride struct {
	ID         string     `json:"id"`
	StudentIDs []string   `json:"student_ids"`
	Title      string     `json:"title"`
	UnlockAt   *time.Time `json:"unlock_at"`
	DueAt      *time.Time `json:"due_at"`
	LockAt     *time.Time `json:"lock_at"`
}

// GetAssignments fetches every assignment, overrides included.
func (c *Client) GetAssignments() ([]*course.Assignment, error) {
	params := assignmentParams{Include: []string{"overrides"}, PerPage: 100}
	var asgns []*course.Assignment
	err := c.getPaged(c.coursePath("assignments"), params, func(page []byte) error {
		var raws []rawAssignment
		if err := json.Unmarshal(page, &raws); err != nil {
			return err
		}
		for _, raw := range raws {
			a := &course.Assignment{
				CanvasID: raw.ID,
				Name:     raw.Name,
				Points:   raw.PointsPossible,
				UnlockAt: raw.UnlockAt,
				DueAt:    raw.DueAt,
				LockAt:   raw.LockAt,
			}
			for _, o := range raw.Overrides {
				a.Overrides = append(a.Overrides, course.Override{
					ID:         o.ID,
					StudentIDs: o.StudentIDs,
					Title:      o.Title,
					UnlockAt:   o.UnlockAt,
					DueAt:      o.DueAt,
					LockAt:     o.LockAt,
				})
			}
			if err := a.Validate(); err != nil {
				return err
			}
			asgns = append(asgns, a)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch assignments")
	}
	return asgns, nil
}

// OverrideSpec describes an override to create.
type OverrideSpec struct {
	StudentIDs []string   `json:"student_ids"`
	Title      string     `json:"title"`
	UnlockAt   *time.Time `json:"unlock_at,omitempty"`
	DueAt      *time.Time `json:"due_at,omitempty"`
	LockAt     *time.Time `json:"lock_at,omitempty"`
}

// CreateOverride creates a due date override on an assignment.
func (c *Client) CreateOverride(assignmentID string, spec OverrideSpec) error {
	if c.dryRun {
		glog.Infof("[dry run] would have created override '%v' on assignment %v", spec.Title, assignmentID)
		return nil
	}
	body := map[string]interface{}{"assignment_override": spec}
	if err := c.do("POST", c.coursePath("assignments/"+assignmentID+"/overrides"), nil, body, nil); err != nil {
		return errors.Wrapf(err, "could not create override '%v'", spec.Title)
	}
	return nil
}

// RemoveOverride deletes a due date override from an assignment.
func (c *Client) RemoveOverride(assignmentID string, overrideID string) error {
	if c.dryRun {
		glog.Infof("[dry run] would have removed override %v from assignment %v", overrideID, assignmentID)
		return nil
	}
	if err := c.do("DELETE", c.coursePath("assignments/"+assignmentID+"/overrides/"+overrideID), nil, nil, nil); err != nil {
		return errors.Wrapf(err, "could not remove override %v", overrideID)
	}
	return nil
}

// PutGrade posts a percentage grade for a student's assignment submission.
func (c *Client) PutGrade(assignmentID string, studentID string, pct string) error {
	if c.dryRun {
		glog.Infof("[dry run] would have posted grade %v%% for student %v on assignment %v", pct, studentID, assignmentID)
		return nil
	}
	body := map[string]interface{}{"submission": map[string]string{"posted_grade": pct}}
	if err := c.do("PUT", c.coursePath("assignments/"+assignmentID+"/submissions/"+studentID), nil, body, nil); err != nil {
		return errors.Wrapf(err, "could not post grade for student %v", studentID)
	}
	return nil
}

// IsGradePosted reports whether the LMS has posted the student's grade to them.
func (c *Client) IsGradePosted(assignmentID string, studentID string) (bool, error) {
	var raw struct {
		PostedAt *time.Time `json:"posted_at"`
	}
	if err := c.getJSON(c.coursePath("assignments/"+assignmentID+"/submissions/"+studentID), nil, &raw); err != nil {
		return false, errors.Wrapf(err, "could not check posted state for student %v", studentID)
	}
	return raw.PostedAt != nil, nil
}

func (c *Client) coursePath(suffix string) string {
	p := fmt.Sprintf("/api/v1/courses/%s", c.courseID)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

// getJSON performs a single GET and decodes the response body.
func (c *Client) getJSON(path string, params interface{}, out interface{}) error {
	body, _, err := c.get(path, params)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// getPaged follows Canvas Link headers until the listing is exhausted, handing each page to the
// given decoder.
func (c *Client) getPaged(path string, params interface{}, page func([]byte) error) error {
	body, next, err := c.get(path, params)
	for {
		if err != nil {
			return err
		}
		if err = page(body); err != nil {
			return err
		}
		if next == "" {
			return nil
		}
		body, next, err = c.getURL(next)
	}
}

var nextLink = regexp.MustCompile(`<([^>]+)>; rel="next"`)

func (c *Client) get(path string, params interface{}) ([]byte, string, error) {
	u := url.URL{Scheme: "https", Host: c.host, Path: path}
	if params != nil {
		vals, err := query.Values(params)
		if err != nil {
			return nil, "", err
		}
		u.RawQuery = vals.Encode()
	}
	return c.getURL(u.String())
}

func (c *Client) getURL(u string) ([]byte, string, error) {
	var body []byte
	var next string
	err := retry.Do(
		func() error {
			req, err := http.NewRequest("GET", u, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			c.authorize(req)
			resp, err := c.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			b, err := ioutil.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 500 {
				return errors.Errorf("LMS returned %v for GET %v", resp.Status, u)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(errors.Errorf("LMS returned %v for GET %v: %s", resp.Status, u, b))
			}
			body = b
			next = ""
			if m := nextLink.FindStringSubmatch(resp.Header.Get("Link")); m != nil {
				next = m[1]
			}
			return nil
		},
		retry.Attempts(3), retry.Delay(time.Second),
	)
	return body, next, err
}

// do performs a mutating request with an optional JSON body.
func (c *Client) do(method string, path string, params interface{}, body interface{}, out interface{}) error {
	u := url.URL{Scheme: "https", Host: c.host, Path: path}
	if params != nil {
		vals, err := query.Values(params)
		if err != nil {
			return err
		}
		u.RawQuery = vals.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequest(method, u.String(), bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			c.authorize(req)
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			resp, err := c.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			b, err := ioutil.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 500 {
				return errors.Errorf("LMS returned %v for %v %v", resp.Status, method, u.String())
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(errors.Errorf("LMS returned %v for %v %v: %s", resp.Status, method, u.String(), b))
			}
			if out != nil {
				return json.Unmarshal(b, out)
			}
			return nil
		},
		retry.Attempts(3), retry.Delay(time.Second),
	)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", acceptHeader)
}
