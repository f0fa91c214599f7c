package suite

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Segment types of the unique ids built by this package.
const (
	SuiteSegmentType     = "suite"
	ContainerSegmentType = "container"
	TestSegmentType      = "test"
)

// Suite is one parsed suite file. Its root container is the file itself.
type Suite struct {
	Path string
	Root *Container
}

// Container groups tests, lifecycle commands and nested containers.
type Container struct {
	Name        string            `yaml:"name" json:"name,omitempty"`
	DisplayName string            `yaml:"display_name" json:"display_name,omitempty"`
	Tags        []string          `yaml:"tags" json:"tags,omitempty"`
	Disabled    *string           `yaml:"disabled" json:"disabled,omitempty"`
	EnabledIf   *Condition        `yaml:"enabled_if" json:"enabled_if,omitempty"`
	Env         map[string]string `yaml:"env" json:"env,omitempty"`
	Extensions  []ExtensionSpec   `yaml:"extensions" json:"extensions,omitempty"`
	BeforeAll   []Command         `yaml:"before_all" json:"before_all,omitempty"`
	AfterAll    []Command         `yaml:"after_all" json:"after_all,omitempty"`
	BeforeEach  []Command         `yaml:"before_each" json:"before_each,omitempty"`
	AfterEach   []Command         `yaml:"after_each" json:"after_each,omitempty"`
	Tests       []*Test           `yaml:"tests" json:"tests,omitempty"`
	Containers  []*Container      `yaml:"containers" json:"containers,omitempty"`

	Line  int        `yaml:"-" json:"-"`
	outer *Container `yaml:"-"`
}

// Test is a single command with expectations on its outcome.
type Test struct {
	Name        string     `yaml:"name" json:"name"`
	DisplayName string     `yaml:"display_name" json:"display_name,omitempty"`
	Tags        []string   `yaml:"tags" json:"tags,omitempty"`
	Disabled    *string    `yaml:"disabled" json:"disabled,omitempty"`
	EnabledIf   *Condition `yaml:"enabled_if" json:"enabled_if,omitempty"`
	Command     `yaml:",inline"`
	Expect      Expect          `yaml:"expect" json:"expect,omitempty"`
	Extensions  []ExtensionSpec `yaml:"extensions" json:"extensions,omitempty"`

	Line      int        `yaml:"-" json:"-"`
	container *Container `yaml:"-"`
}

// Command is a process invocation.
type Command struct {
	Run  string            `yaml:"run" json:"run"`
	Args []string          `yaml:"args" json:"args,omitempty"`
	Env  map[string]string `yaml:"env" json:"env,omitempty"`
	Dir  string            `yaml:"dir" json:"dir,omitempty"`
}

// Expect describes a successful outcome. Zero values check only the exit code.
type Expect struct {
	ExitCode       int    `yaml:"exit_code" json:"exit_code"`
	StdoutContains string `yaml:"stdout_contains" json:"stdout_contains,omitempty"`
	StderrContains string `yaml:"stderr_contains" json:"stderr_contains,omitempty"`
}

// Condition enables a node when a script evaluates to true.
type Condition struct {
	Language   string `yaml:"language" json:"language,omitempty"`
	Expression string `yaml:"expression" json:"expression"`
	Reason     string `yaml:"reason" json:"reason,omitempty"`
}

// ExtensionSpec names a registered extension type and its configuration.
type ExtensionSpec struct {
	Type   string         `yaml:"type" json:"type"`
	Config map[string]any `yaml:"config" json:"config,omitempty"`
}

func (c *Container) UnmarshalYAML(n *yaml.Node) error {
	type plain Container
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*c = Container(p)
	c.Line = n.Line
	return nil
}

func (t *Test) UnmarshalYAML(n *yaml.Node) error {
	type plain Test
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*t = Test(p)
	t.Line = n.Line
	return nil
}

// QualifiedName joins the names from the suite down to c with dots.
func (c *Container) QualifiedName() string {
	var parts []string
	for cur := c; cur != nil; cur = cur.outer {
		parts = append([]string{cur.Name}, parts...)
	}
	return strings.Join(parts, ".")
}

func (t *Test) String() string {
	return t.container.QualifiedName() + "." + t.Name
}

// link sets back references from nested containers and tests.
func (c *Container) link() {
	for _, t := range c.Tests {
		t.container = c
	}
	for _, n := range c.Containers {
		n.outer = c
		n.link()
	}
}

// suiteName derives a suite name from its file name.
func suiteName(path string) string {
	base := path[strings.LastIndexAny(path, `/\`)+1:]
	for _, ext := range extensions {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}
