package suite

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"github.com/tuchang/junit5/pkg/domain"
)

var extensions = []string{".suite.yaml", ".suite.yml", ".suite.hcl"}

// IsSuiteFile reports whether path has a suite file extension.
func IsSuiteFile(path string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// Parse reads and validates one suite file.
func Parse(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite: %w", err)
	}
	return ParseBytes(path, data)
}

// ParseBytes parses data as the content of the suite file at path. The
// format is chosen by extension: .suite.hcl is HCL, anything else YAML.
func ParseBytes(path string, data []byte) (*Suite, error) {
	var (
		root *Container
		err  error
	)
	if strings.HasSuffix(path, ".suite.hcl") {
		root, err = parseHCL(path, data)
	} else {
		root, err = parseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if root.Name == "" {
		root.Name = suiteName(path)
	}
	root.link()
	if err := checkContainer(root); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Suite{Path: path, Root: root}, nil
}

func parseYAML(data []byte) (*Container, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("empty suite")
	}
	if err := validateDocument(raw); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}

	var c Container
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// checkContainer rejects what the schema cannot express: duplicate names
// and malformed tags.
func checkContainer(c *Container) error {
	var errs []error
	if _, err := domain.ParseTags(c.Tags...); err != nil {
		errs = append(errs, fmt.Errorf("container %s: %w", c.QualifiedName(), err))
	}

	tests := make(map[string]bool, len(c.Tests))
	for _, t := range c.Tests {
		if tests[t.Name] {
			errs = append(errs, fmt.Errorf("container %s: duplicate test %q", c.QualifiedName(), t.Name))
		}
		tests[t.Name] = true
		if _, err := domain.ParseTags(t.Tags...); err != nil {
			errs = append(errs, fmt.Errorf("test %s: %w", t, err))
		}
	}

	nested := make(map[string]bool, len(c.Containers))
	for _, n := range c.Containers {
		if nested[n.Name] {
			errs = append(errs, fmt.Errorf("container %s: duplicate container %q", c.QualifiedName(), n.Name))
		}
		nested[n.Name] = true
		if err := checkContainer(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	conditionSchema = &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "language"},
			{Name: "expression", Required: true},
			{Name: "reason"},
		},
	}

	commandSchema = &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "run", Required: true},
			{Name: "args"},
			{Name: "env"},
			{Name: "dir"},
		},
	}

	expectSchema = &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "exit_code"},
			{Name: "stdout_contains"},
			{Name: "stderr_contains"},
		},
	}

	testSchema = &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "display_name"},
			{Name: "tags"},
			{Name: "disabled"},
			{Name: "run", Required: true},
			{Name: "args"},
			{Name: "env"},
			{Name: "dir"},
		},
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "enabled_if"},
			{Type: "expect"},
			{Type: "extension", LabelNames: []string{"type"}},
		},
	}

	containerSchema = &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "name"},
			{Name: "display_name"},
			{Name: "tags"},
			{Name: "disabled"},
			{Name: "env"},
		},
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "enabled_if"},
			{Type: "extension", LabelNames: []string{"type"}},
			{Type: "before_all"},
			{Type: "after_all"},
			{Type: "before_each"},
			{Type: "after_each"},
			{Type: "test", LabelNames: []string{"name"}},
			{Type: "container", LabelNames: []string{"name"}},
		},
	}
)

func parseHCL(path string, data []byte) (*Container, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, diags
	}
	c, diags := decodeContainer(file.Body, "")
	if diags.HasErrors() {
		return nil, diags
	}
	if err := validateDocument(c); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}
	return c, nil
}

func decodeAttr(attrs hcl.Attributes, name string, target any) hcl.Diagnostics {
	attr, ok := attrs[name]
	if !ok {
		return nil
	}
	return gohcl.DecodeExpression(attr.Expr, nil, target)
}

func decodeOptional(attrs hcl.Attributes, name string) (*string, hcl.Diagnostics) {
	if _, ok := attrs[name]; !ok {
		return nil, nil
	}
	var s string
	diags := decodeAttr(attrs, name, &s)
	return &s, diags
}

func decodeContainer(body hcl.Body, name string) (*Container, hcl.Diagnostics) {
	content, diags := body.Content(containerSchema)
	if diags.HasErrors() {
		return nil, diags
	}

	c := &Container{Name: name}
	if name == "" {
		diags = append(diags, decodeAttr(content.Attributes, "name", &c.Name)...)
	}
	diags = append(diags, decodeAttr(content.Attributes, "display_name", &c.DisplayName)...)
	diags = append(diags, decodeAttr(content.Attributes, "tags", &c.Tags)...)
	diags = append(diags, decodeAttr(content.Attributes, "env", &c.Env)...)
	var d hcl.Diagnostics
	c.Disabled, d = decodeOptional(content.Attributes, "disabled")
	diags = append(diags, d...)

	for _, block := range content.Blocks {
		switch block.Type {
		case "enabled_if":
			c.EnabledIf, d = decodeCondition(block.Body)
		case "extension":
			var spec ExtensionSpec
			spec, d = decodeExtension(block)
			c.Extensions = append(c.Extensions, spec)
		case "before_all", "after_all", "before_each", "after_each":
			var cmd Command
			cmd, d = decodeCommand(block.Body)
			switch block.Type {
			case "before_all":
				c.BeforeAll = append(c.BeforeAll, cmd)
			case "after_all":
				c.AfterAll = append(c.AfterAll, cmd)
			case "before_each":
				c.BeforeEach = append(c.BeforeEach, cmd)
			default:
				c.AfterEach = append(c.AfterEach, cmd)
			}
		case "test":
			var t *Test
			t, d = decodeTest(block)
			if t != nil {
				c.Tests = append(c.Tests, t)
			}
		case "container":
			var nested *Container
			nested, d = decodeContainer(block.Body, block.Labels[0])
			if nested != nil {
				nested.Line = block.DefRange.Start.Line
				c.Containers = append(c.Containers, nested)
			}
		}
		diags = append(diags, d...)
	}
	return c, diags
}

func decodeTest(block *hcl.Block) (*Test, hcl.Diagnostics) {
	content, diags := block.Body.Content(testSchema)
	if diags.HasErrors() {
		return nil, diags
	}

	t := &Test{Name: block.Labels[0], Line: block.DefRange.Start.Line}
	attrs := content.Attributes
	diags = append(diags, decodeAttr(attrs, "display_name", &t.DisplayName)...)
	diags = append(diags, decodeAttr(attrs, "tags", &t.Tags)...)
	diags = append(diags, decodeAttr(attrs, "run", &t.Run)...)
	diags = append(diags, decodeAttr(attrs, "args", &t.Args)...)
	diags = append(diags, decodeAttr(attrs, "env", &t.Env)...)
	diags = append(diags, decodeAttr(attrs, "dir", &t.Dir)...)
	var d hcl.Diagnostics
	t.Disabled, d = decodeOptional(attrs, "disabled")
	diags = append(diags, d...)

	for _, b := range content.Blocks {
		switch b.Type {
		case "enabled_if":
			t.EnabledIf, d = decodeCondition(b.Body)
		case "expect":
			t.Expect, d = decodeExpect(b.Body)
		case "extension":
			var spec ExtensionSpec
			spec, d = decodeExtension(b)
			t.Extensions = append(t.Extensions, spec)
		}
		diags = append(diags, d...)
	}
	return t, diags
}

func decodeCommand(body hcl.Body) (Command, hcl.Diagnostics) {
	var cmd Command
	content, diags := body.Content(commandSchema)
	if diags.HasErrors() {
		return cmd, diags
	}
	diags = append(diags, decodeAttr(content.Attributes, "run", &cmd.Run)...)
	diags = append(diags, decodeAttr(content.Attributes, "args", &cmd.Args)...)
	diags = append(diags, decodeAttr(content.Attributes, "env", &cmd.Env)...)
	diags = append(diags, decodeAttr(content.Attributes, "dir", &cmd.Dir)...)
	return cmd, diags
}

func decodeExpect(body hcl.Body) (Expect, hcl.Diagnostics) {
	var x Expect
	content, diags := body.Content(expectSchema)
	if diags.HasErrors() {
		return x, diags
	}
	diags = append(diags, decodeAttr(content.Attributes, "exit_code", &x.ExitCode)...)
	diags = append(diags, decodeAttr(content.Attributes, "stdout_contains", &x.StdoutContains)...)
	diags = append(diags, decodeAttr(content.Attributes, "stderr_contains", &x.StderrContains)...)
	return x, diags
}

func decodeCondition(body hcl.Body) (*Condition, hcl.Diagnostics) {
	content, diags := body.Content(conditionSchema)
	if diags.HasErrors() {
		return nil, diags
	}
	var c Condition
	diags = append(diags, decodeAttr(content.Attributes, "language", &c.Language)...)
	diags = append(diags, decodeAttr(content.Attributes, "expression", &c.Expression)...)
	diags = append(diags, decodeAttr(content.Attributes, "reason", &c.Reason)...)
	return &c, diags
}

// decodeExtension reads the free-form attributes of an extension block.
func decodeExtension(block *hcl.Block) (ExtensionSpec, hcl.Diagnostics) {
	spec := ExtensionSpec{Type: block.Labels[0]}
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return spec, diags
	}
	if len(attrs) == 0 {
		return spec, diags
	}

	spec.Config = make(map[string]any, len(attrs))
	for name, attr := range attrs {
		v, d := attr.Expr.Value(nil)
		diags = append(diags, d...)
		if d.HasErrors() {
			continue
		}
		goValue, err := ctyToGo(v)
		if err != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unsupported extension value",
				Detail:   fmt.Sprintf("Attribute %q: %s.", name, err),
				Subject:  &attr.Range,
			})
			continue
		}
		spec.Config[name] = goValue
	}
	return spec, diags
}

// ctyToGo converts a cty value into plain Go values: strings, int64 or
// float64 numbers, bools, maps and slices.
func ctyToGo(v cty.Value) (any, error) {
	if !v.IsKnown() || v.IsNull() {
		return nil, nil
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString(), nil
	case t == cty.Bool:
		return v.True(), nil
	case t == cty.Number:
		f := v.AsBigFloat()
		if f.IsInt() {
			if i, acc := f.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		out, _ := f.Float64()
		return out, nil
	case t.IsObjectType() || t.IsMapType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			k, elem := it.Element()
			goValue, err := ctyToGo(elem)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = goValue
		}
		return out, nil
	case t.IsTupleType() || t.IsListType() || t.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			goValue, err := ctyToGo(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, goValue)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %s", t.FriendlyName())
}
