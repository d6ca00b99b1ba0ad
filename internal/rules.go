package internal

import (
	"errors"
	"fmt"
	"log"
	"reflect"
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
	"gopkg.in/yaml.v3"
)

// Rule routes events matching When to the topics in Emit.
// Drivers optionally restricts which publishers receive the event.
type Rule struct {
	When    string   `yaml:"when"`
	Emit    EmitList `yaml:"emit"`
	Drivers []string `yaml:"drivers"`
}

// EmitList is a list of topics that also accepts a single string in YAML.
type EmitList []string

func (e *EmitList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var topic string
		if err := value.Decode(&topic); err != nil {
			return err
		}
		*e = EmitList{topic}
		return nil
	case yaml.SequenceNode:
		var topics []string
		if err := value.Decode(&topics); err != nil {
			return err
		}
		*e = EmitList(topics)
		return nil
	default:
		return fmt.Errorf("line %d: emit must be a string or a list of strings", value.Line)
	}
}

func (e EmitList) normalized() EmitList {
	out := make(EmitList, 0, len(e))
	for _, topic := range e {
		if trimmed := strings.TrimSpace(topic); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// RuleMatch is a topic an event must be published to.
type RuleMatch struct {
	Topic   string
	Drivers []string
}

type compiledRule struct {
	emit    EmitList
	drivers []string
	expr    *govaluate.EvaluableExpression
}

type RuleEngine struct {
	rules  []compiledRule
	strict bool
	logger *log.Logger
}

var ruleFunctions = map[string]govaluate.ExpressionFunction{
	"contains": containsFunc,
	"like":     likeFunc,
}

func NewRuleEngine(cfg RulesConfig) (*RuleEngine, error) {
	rules := make([]compiledRule, 0, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(rule.When, ruleFunctions)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, compiledRule{emit: rule.Emit.normalized(), drivers: rule.Drivers, expr: expr})
	}

	logger := cfg.Logger
	if logger == nil {
		logger = NewLogger("rules")
	}
	return &RuleEngine{rules: rules, strict: cfg.Strict, logger: logger}, nil
}

// Evaluate returns one match per topic of every rule whose expression is true.
func (r *RuleEngine) Evaluate(event Event) []RuleMatch {
	if r == nil || len(r.rules) == 0 {
		return nil
	}

	params := eventParameters{data: event.Data, raw: event.RawObject, strict: r.strict}
	matches := make([]RuleMatch, 0, 1)
	for _, rule := range r.rules {
		result, err := rule.expr.Eval(params)
		if err != nil {
			r.logger.Printf("rule eval failed: when=%q err=%v", rule.expr.String(), err)
			continue
		}
		ok, _ := result.(bool)
		if !ok {
			continue
		}
		for _, topic := range rule.emit {
			matches = append(matches, RuleMatch{Topic: topic, Drivers: rule.drivers})
		}
	}
	return matches
}

// eventParameters resolves rule variables. Names starting with "$" are JSONPath
// queries against the raw payload; everything else is a flattened key. Both are
// written in brackets in expressions, e.g. [$.refUpdate.project] or
// [refUpdate.refName], with a literal "]" escaped as "\]".
// Outside strict mode unknown variables resolve to nil.
type eventParameters struct {
	data   map[string]interface{}
	raw    interface{}
	strict bool
}

func (p eventParameters) Get(name string) (interface{}, error) {
	if strings.HasPrefix(name, "$") {
		if p.raw == nil {
			return p.missing(name, errors.New("no raw payload"))
		}
		value, err := jsonpath.Get(name, p.raw)
		if err != nil {
			return p.missing(name, err)
		}
		return value, nil
	}
	value, ok := p.data[name]
	if !ok {
		return p.missing(name, errors.New("not found"))
	}
	return value, nil
}

func (p eventParameters) missing(name string, err error) (interface{}, error) {
	if p.strict {
		return nil, fmt.Errorf("parameter %s: %w", name, err)
	}
	return nil, nil
}

// containsFunc reports whether a list holds an item, or a string holds a
// substring. govaluate spreads a list argument into separate arguments, so
// every argument but the last forms the haystack in that case.
func containsFunc(args ...interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("contains expects 2 arguments, got %d", len(args))
	}
	needle := args[len(args)-1]
	if len(args) > 2 {
		return containsItem(args[:len(args)-1], needle), nil
	}
	switch haystack := args[0].(type) {
	case nil:
		return false, nil
	case string:
		sub, ok := needle.(string)
		return ok && strings.Contains(haystack, sub), nil
	case []interface{}:
		return containsItem(haystack, needle), nil
	default:
		return reflect.DeepEqual(haystack, needle), nil
	}
}

func containsItem(items []interface{}, needle interface{}) bool {
	for _, item := range items {
		if reflect.DeepEqual(item, needle) {
			return true
		}
	}
	return false
}

// likeFunc matches a string against a pattern where % matches any run of
// characters and _ matches exactly one.
func likeFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("like expects 2 arguments, got %d", len(args))
	}
	value, ok := args[0].(string)
	if !ok {
		return false, nil
	}
	pattern, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("like: pattern must be a string, got %T", args[1])
	}

	var expr strings.Builder
	expr.WriteString("^")
	for _, ch := range pattern {
		switch ch {
		case '%':
			expr.WriteString(".*")
		case '_':
			expr.WriteString(".")
		default:
			expr.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	expr.WriteString("$")

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, err
	}
	return re.MatchString(value), nil
}
