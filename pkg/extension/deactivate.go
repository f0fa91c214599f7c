package extension

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

// DeactivateConditionsPatternKey names the configuration parameter listing the
// conditions to ignore. The value is a comma-separated list of patterns in which
// '*' matches one or more characters; "*" alone deactivates every condition.
//
//	junit.conditions.deactivate=*EnvironmentVariable,conditions.Disabled
const DeactivateConditionsPatternKey = "junit.conditions.deactivate"

// Name returns the short name of ext: its ExtensionName when it implements Named,
// otherwise its package-qualified type, e.g. "conditions.Disabled".
func Name(ext Extension) string {
	if n, ok := ext.(Named); ok {
		return n.ExtensionName()
	}
	return baseType(ext).String()
}

// QualifiedName returns the import path qualified type of ext.
func QualifiedName(ext Extension) string {
	t := baseType(ext)
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

func baseType(ext Extension) reflect.Type {
	t := reflect.TypeOf(ext)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// Deactivator matches extensions against deactivation patterns.
type Deactivator struct {
	all      bool
	patterns []*regexp.Regexp
}

var deactivators sync.Map // pattern string -> *Deactivator

// NewDeactivator compiles a comma-separated pattern list.
func NewDeactivator(patterns string) (*Deactivator, error) {
	if cached, ok := deactivators.Load(patterns); ok {
		return cached.(*Deactivator), nil
	}
	d := &Deactivator{}
	for _, p := range strings.Split(patterns, ",") {
		p = strings.TrimSpace(p)
		switch p {
		case "":
			continue
		case "*":
			d.all = true
			continue
		}
		pieces := strings.Split(p, "*")
		for i := range pieces {
			pieces[i] = regexp.QuoteMeta(pieces[i])
		}
		re, err := regexp.Compile("^" + strings.Join(pieces, ".+") + "$")
		if err != nil {
			return nil, fmt.Errorf("invalid deactivation pattern %q: %w", p, err)
		}
		d.patterns = append(d.patterns, re)
	}
	deactivators.Store(patterns, d)
	return d, nil
}

// Deactivated reports whether ext matches one of the patterns.
func (d *Deactivator) Deactivated(ext Extension) bool {
	if d == nil {
		return false
	}
	if d.all {
		return true
	}
	names := []string{Name(ext), QualifiedName(ext)}
	for _, re := range d.patterns {
		for _, n := range names {
			if re.MatchString(n) {
				return true
			}
		}
	}
	return false
}
