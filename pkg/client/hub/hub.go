// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

// Package hub implements the JupyterHub admin API client used to provision grader accounts.
package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"regexp"
	"strings"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Client talks to one JupyterHub's admin API.
type Client struct {
	host   string
	token  string
	dryRun bool
	http   *http.Client
}

// New creates a hub client.  The host may carry a protocol prefix or trailing slash.
func New(host string, token string, dryRun bool) *Client {
	host = regexp.MustCompile(`^https?://`).ReplaceAllString(host, "")
	host = strings.TrimRight(host, "/")
	return &Client{
		host:   host,
		token:  token,
		dryRun: dryRun,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// GraderExists reports whether a hub account exists for the grader.
func (c *Client) GraderExists(name string) (bool, error) {
	status, _, err := c.do("GET", "/hub/api/users/"+name, nil)
	if err != nil {
		return false, errors.Wrapf(err, "could not look up hub user %v", name)
	}
	switch {
	case status == http.StatusNotFound:
		return false, nil
	case status >= 400:
		return false, errors.Errorf("hub returned %v looking up user %v", status, name)
	}
	return true, nil
}

// AssignGrader creates the grader account and grants the human grader access to it, by way of a
// hub group named after the grader slot.  Both steps are idempotent.
func (c *Client) AssignGrader(name string, humanID string) error {
	if c.dryRun {
		glog.Infof("[dry run] would have created hub user %v and granted access to %v", name, humanID)
		return nil
	}

	if status, _, err := c.do("POST", "/hub/api/users/"+name, nil); err != nil {
		return errors.Wrapf(err, "could not create hub user %v", name)
	} else if status >= 400 && status != http.StatusConflict {
		return errors.Errorf("hub returned %v creating user %v", status, name)
	}

	if status, _, err := c.do("POST", "/hub/api/groups/"+name, nil); err != nil {
		return errors.Wrapf(err, "could not create hub group %v", name)
	} else if status >= 400 && status != http.StatusConflict {
		return errors.Errorf("hub returned %v creating group %v", status, name)
	}

	body := map[string][]string{"users": {humanID}}
	if status, _, err := c.do("POST", "/hub/api/groups/"+name+"/users", body); err != nil {
		return errors.Wrapf(err, "could not grant %v access to grader %v", humanID, name)
	} else if status >= 400 && status != http.StatusConflict {
		return errors.Errorf("hub returned %v granting %v access to %v", status, humanID, name)
	}
	return nil
}

// do performs one authenticated request, retrying transient failures.  4xx statuses are returned
// to the caller rather than treated as errors, since "not found" is a meaningful answer here.
func (c *Client) do(method string, path string, body interface{}) (int, []byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return 0, nil, err
		}
	}

	var status int
	var respBody []byte
	err := retry.Do(
		func() error {
			u := fmt.Sprintf("https://%s%s", c.host, path)
			req, err := http.NewRequest(method, u, bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Authorization", "token "+c.token)
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
				return errors.Errorf("hub returned %v for %v %v", resp.Status, method, path)
			}
			status, respBody = resp.StatusCode, b
			return nil
		},
		retry.Attempts(3), retry.Delay(time.Second),
	)
	return status, respBody, err
}
