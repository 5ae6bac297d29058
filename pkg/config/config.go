// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// ConfigFile is the name of the course configuration file, expected in the course directory.
const ConfigFile = "gradeflow.yaml"

// Config is a course's gradeflow manifest.
//
// We explicitly add yaml tags (instead of relying on json tag conversion) so we can directly
// marshal and unmarshal this struct using go-yaml and have the fields in the serialized object
// match the order they are defined in this struct.
// nolint: lll
type Config struct {
	Name                string `json:"name" yaml:"name"`                                   // a required course short name; used for state file names.
	UserFolderRoot      string `json:"user_folder_root" yaml:"user_folder_root"`           // the filesystem root holding grader folders.
	StudentFolderRoot   string `json:"student_folder_root" yaml:"student_folder_root"`     // the filesystem root holding student folders.
	CourseMaterialsPath string `json:"course_materials_path" yaml:"course_materials_path"` // the subpath inside a student folder where assignments live.

	InstructorRepoURL  string `json:"instructor_repo_url" yaml:"instructor_repo_url"`   // the git URL of the instructor repository.
	InstructorRepoName string `json:"instructor_repo_name" yaml:"instructor_repo_name"` // the directory name the repository is cloned to.

	NumGraders int                 `json:"num_graders" yaml:"num_graders"` // the number of grader slots per assignment.
	Graders    map[string][]string `json:"graders" yaml:"graders"`         // assignment name -> ordered human grader ids; length must be >= num_graders.

	LateregExtensionDays    int     `json:"latereg_extension_days" yaml:"latereg_extension_days"`       // days of extension granted to late registrants.
	ReturnSolutionThreshold float64 `json:"return_solution_threshold" yaml:"return_solution_threshold"` // fraction of the class collected before solutions are released; in (0, 1].

	CanvasURL      string `json:"canvas_url" yaml:"canvas_url"`                                 // the LMS API host.
	CanvasCourseID string `json:"canvas_course_id" yaml:"canvas_course_id"`                     // the LMS course identifier.
	CanvasTokenEnv string `json:"canvas_token_env,omitempty" yaml:"canvas_token_env,omitempty"` // env var holding the LMS API token.

	HubURL      string `json:"hub_url" yaml:"hub_url"`                                 // the JupyterHub API host.
	HubTokenEnv string `json:"hub_token_env,omitempty" yaml:"hub_token_env,omitempty"` // env var holding the hub API token.
	HubUser     string `json:"hub_user,omitempty" yaml:"hub_user,omitempty"`           // the unix account the hub executes as; collected files are chowned to it.

	GradingImage       string `json:"grading_image" yaml:"grading_image"`                                   // the container image autograding runs in.
	ContainerWorkers   int    `json:"container_workers,omitempty" yaml:"container_workers,omitempty"`       // max concurrently running grading containers.
	CreateFolderScript string `json:"create_folder_script,omitempty" yaml:"create_folder_script,omitempty"` // optional script used to create user folders; plain `zfs create` otherwise.

	StudentNamePrefix  string `json:"student_name_prefix,omitempty" yaml:"student_name_prefix,omitempty"` // prefix for student folders inside the grader repo.
	NotificationMethod string `json:"notification_method,omitempty" yaml:"notification_method,omitempty"` // notifier selection; only "none" is implemented.
}

// Load reads and validates the course configuration from the given course directory.  A missing or
// invalid configuration is fatal for the run; no mutation happens before this succeeds.
func Load(courseDir string) (*Config, error) {
	path := filepath.Join(courseDir, ConfigFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf(
				"no %v found in '%v'; please specify a course directory with a valid configuration file",
				ConfigFile, courseDir)
		}
		return nil, err
	}

	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %v", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, errors.Wrapf(err, "could not parse %v", path)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid configuration in %v", path)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	// The snapshot syntax is sensitive to trailing slashes on the dataset roots.
	c.UserFolderRoot = strings.TrimRight(c.UserFolderRoot, "/")
	c.StudentFolderRoot = strings.TrimRight(c.StudentFolderRoot, "/")

	if c.CanvasTokenEnv == "" {
		c.CanvasTokenEnv = "CANVAS_TOKEN"
	}
	if c.HubTokenEnv == "" {
		c.HubTokenEnv = "JUPYTERHUB_API_TOKEN"
	}
	if c.HubUser == "" {
		c.HubUser = "jupyter"
	}
	if c.StudentNamePrefix == "" {
		c.StudentNamePrefix = "student_"
	}
	if c.ContainerWorkers == 0 {
		c.ContainerWorkers = 4
	}
	if c.NotificationMethod == "" {
		c.NotificationMethod = "none"
	}
}

// Validate checks the configuration's internal invariants.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("configuration is missing a 'name' attribute")
	}
	if c.UserFolderRoot == "" {
		return errors.New("configuration is missing a 'user_folder_root' attribute")
	}
	if c.StudentFolderRoot == "" {
		return errors.New("configuration is missing a 'student_folder_root' attribute")
	}
	if c.NumGraders < 1 {
		return errors.New("'num_graders' must be at least 1")
	}
	if c.ReturnSolutionThreshold <= 0 || c.ReturnSolutionThreshold > 1 {
		return errors.New("'return_solution_threshold' must be in (0, 1]")
	}
	if c.LateregExtensionDays < 0 {
		return errors.New("'latereg_extension_days' must not be negative")
	}
	for name, humans := range c.Graders {
		if len(humans) < c.NumGraders {
			return errors.Errorf(
				"'graders' entry for assignment '%v' lists %v graders; need at least %v",
				name, len(humans), c.NumGraders)
		}
	}
	if c.NotificationMethod != "none" {
		return errors.Errorf("unknown 'notification_method' '%v'; only \"none\" is implemented", c.NotificationMethod)
	}
	return nil
}

// GradersFor returns the ordered human grader ids for an assignment.  A missing entry is a
// configuration error; the provisioner treats it as fatal for the whole run.
func (c *Config) GradersFor(assignment string) ([]string, error) {
	humans, has := c.Graders[assignment]
	if !has {
		return nil, errors.Errorf("no 'graders' entry configured for assignment '%v'", assignment)
	}
	return humans, nil
}
