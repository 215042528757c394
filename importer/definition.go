/*
 * Copyright (c) 2020 Siemens AG
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of
 * this software and associated documentation files (the "Software"), to deal in
 * the Software without restriction, including without limitation the rights to
 * use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
 * the Software, and to permit persons to whom the Software is furnished to do so,
 * subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
 * FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
 * COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
 * IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
 * CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 *
 * Author(s): Jonas Plum
 */

package importer

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// Action is a routing decision of an import rule and the action taken on an
// item.
type Action int

const (
	ActionUnknown Action = iota
	ActionIgnore
	ActionImport
	ActionExtract
	ActionExpand
)

var actionNames = map[Action]string{
	ActionUnknown: "unknown",
	ActionIgnore:  "ignore",
	ActionImport:  "import",
	ActionExtract: "extract",
	ActionExpand:  "expand",
}

func (a Action) String() string {
	return actionNames[a]
}

// ParseAction parses an action name.
func ParseAction(s string) (Action, error) {
	for a, name := range actionNames {
		if a != ActionUnknown && strings.EqualFold(name, s) {
			return a, nil
		}
	}
	return ActionUnknown, errors.Errorf("unknown action %q", s)
}

// Rule routes items whose name matches NameMatch.
//
// Matching is case-insensitive and also tries every stem of the name with
// trailing extensions removed. "*.tmp" matches "data.tmp.csv", "data"
// matches "data.exe" and "*.csv" matches "x.csv.gz". An import rule still
// needs an importable format, so "x.csv.gz" is not imported as CSV.
type Rule struct {
	Action Action
	// NameMatch is a glob. Patterns containing a slash are matched against
	// the full name of an item, all others against its name.
	NameMatch string
	Table     string
	Password  string
	Before    string
	After     string
}

// Definition is an ordered rule list. It is read-only once in use.
type Definition struct {
	Rules []Rule
}

// Validate checks the rule patterns.
func (d *Definition) Validate() error {
	for i, r := range d.Rules {
		if r.NameMatch == "" || !doublestar.ValidatePattern(strings.ToLower(r.NameMatch)) {
			return errors.Errorf("rule %d: invalid name pattern %q", i, r.NameMatch)
		}
		if r.Action == ActionImport && r.Table == "" {
			return errors.Errorf("rule %d: import rule %q without table", i, r.NameMatch)
		}
	}
	return nil
}

// Match returns the first rule of the given action that matches the item
// named name with the relative path fullName.
func (d *Definition) Match(action Action, name, fullName string) (*Rule, bool) {
	if d == nil {
		return nil, false
	}
	for i := range d.Rules {
		r := &d.Rules[i]
		if r.Action == action && r.matches(name, fullName) {
			return r, true
		}
	}
	return nil, false
}

// Password returns the password of the first rule with a password that
// matches the item.
func (d *Definition) Password(name, fullName string) string {
	if d == nil {
		return ""
	}
	for _, r := range d.Rules {
		if r.Password != "" && r.matches(name, fullName) {
			return r.Password
		}
	}
	return ""
}

// matches compares case-insensitively. The name and every stem of the name
// with trailing extensions removed are tried, so "*.tmp" matches
// "data.tmp.csv".
func (r *Rule) matches(name, fullName string) bool {
	pattern := strings.ToLower(r.NameMatch)
	candidate := strings.ToLower(name)
	if strings.Contains(pattern, "/") {
		candidate = strings.ToLower(strings.TrimPrefix(path.Clean("/"+fullName), "/"))
		pattern = strings.TrimPrefix(pattern, "/")
	}

	for candidate != "" {
		if ok, _ := doublestar.Match(pattern, candidate); ok {
			return true
		}
		ext := path.Ext(candidate)
		if ext == "" || ext == candidate {
			break
		}
		candidate = strings.TrimSuffix(candidate, ext)
	}
	return false
}
