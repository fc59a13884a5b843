// Package ability answers "can this session perform action A on subject S".
//
// An Engine is built once from a permission index and never changes; a role
// change produces a new Engine.
package ability

import (
	"sort"

	"github.com/frahmantamala/access-control/internal/permission"
)

type Action string

const (
	Create Action = "create"
	Read   Action = "read"
	Update Action = "update"
	Delete Action = "delete"
	Manage Action = "manage"
)

// SubjectAll matches every subject.
const SubjectAll = "all"

var crud = []Action{Create, Read, Update, Delete}

// Rule grants one action on one subject.
type Rule struct {
	Action  Action `json:"action"`
	Subject string `json:"subject"`
}

var legacyActions = map[string]Action{
	"create": Create,
	"add":    Create,
	"read":   Read,
	"view":   Read,
	"list":   Read,
	"update": Update,
	"edit":   Update,
	"delete": Delete,
	"remove": Delete,
	"manage": Manage,
}

// NormalizeAction maps a permission-key verb onto the ability vocabulary.
func NormalizeAction(verb string) (Action, bool) {
	a, ok := legacyActions[verb]
	return a, ok
}

type Engine struct {
	index   *permission.Index
	rules   []Rule
	allowed map[string]map[Action]struct{}
}

// New derives rules from the keys in idx. Keys whose verb is outside the
// vocabulary stay queryable through Has but grant no rule.
func New(idx *permission.Index) *Engine {
	if idx == nil {
		idx = permission.NewIndex(nil)
	}
	var rules []Rule
	for _, key := range idx.Keys() {
		subject, verb := permission.ParseKey(key)
		action, ok := NormalizeAction(verb)
		if !ok || subject == "" {
			continue
		}
		rules = append(rules, Rule{Action: action, Subject: subject})
	}
	e := build(rules)
	e.index = idx
	return e
}

// FromKeys is shorthand for New(permission.NewIndex(keys)).
func FromKeys(keys []string) *Engine {
	return New(permission.NewIndex(keys))
}

// FromRules builds an engine directly from action/subject pairs.
func FromRules(rules []Rule) *Engine {
	e := build(rules)
	keys := make([]string, 0, len(rules))
	for _, r := range rules {
		keys = append(keys, permission.Key(r.Subject, string(r.Action)))
	}
	e.index = permission.NewIndex(keys)
	return e
}

func build(rules []Rule) *Engine {
	e := &Engine{allowed: make(map[string]map[Action]struct{})}
	seen := make(map[Rule]struct{}, len(rules))
	for _, r := range rules {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		e.rules = append(e.rules, r)

		set, ok := e.allowed[r.Subject]
		if !ok {
			set = make(map[Action]struct{})
			e.allowed[r.Subject] = set
		}
		set[r.Action] = struct{}{}
		if r.Action == Manage {
			for _, a := range crud {
				set[a] = struct{}{}
			}
		}
	}
	sort.Slice(e.rules, func(i, j int) bool {
		if e.rules[i].Subject != e.rules[j].Subject {
			return e.rules[i].Subject < e.rules[j].Subject
		}
		return e.rules[i].Action < e.rules[j].Action
	})
	return e
}

// Can reports whether action is permitted on subject. Asking for manage
// requires a manage grant, not the four CRUD grants separately.
func (e *Engine) Can(action Action, subject string) bool {
	if e == nil {
		return false
	}
	return e.grants(subject, action) || e.grants(SubjectAll, action)
}

func (e *Engine) Cannot(action Action, subject string) bool {
	return !e.Can(action, subject)
}

func (e *Engine) grants(subject string, action Action) bool {
	set, ok := e.allowed[subject]
	if !ok {
		return false
	}
	_, ok = set[action]
	return ok
}

// Has checks the raw permission key, including keys that map to no rule.
func (e *Engine) Has(key string) bool {
	if e == nil {
		return false
	}
	return e.index.Has(key)
}

func (e *Engine) Index() *permission.Index {
	if e == nil {
		return permission.NewIndex(nil)
	}
	return e.index
}

// Rules returns a copy of the resolved rule list.
func (e *Engine) Rules() []Rule {
	if e == nil {
		return []Rule{}
	}
	return append([]Rule{}, e.rules...)
}

// Empty is an engine that denies everything.
func Empty() *Engine {
	return FromRules(nil)
}
