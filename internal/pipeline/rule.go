package pipeline

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultCoreTopicRule asks for a core topic when the model says the main
// category alone does not describe the exam.
const DefaultCoreTopicRule = "sufficient == 0"

// TopicRule decides whether an exam gets a core topic below its main
// category. The expression sees `sufficient` (the model's numeric answer)
// and `category` (the chosen main category).
type TopicRule struct {
	source  string
	program *vm.Program
}

func NewTopicRule(expression string) (*TopicRule, error) {
	if expression == "" {
		expression = DefaultCoreTopicRule
	}
	prog, err := expr.Compile(expression, expr.Env(ruleEnv(0, "")), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile topic rule: %w", err)
	}
	return &TopicRule{source: expression, program: prog}, nil
}

func (r *TopicRule) String() string {
	return r.source
}

// NeedsCoreTopic evaluates the rule.
func (r *TopicRule) NeedsCoreTopic(sufficient float64, category string) (bool, error) {
	result, err := expr.Run(r.program, ruleEnv(sufficient, category))
	if err != nil {
		return false, fmt.Errorf("evaluate topic rule: %w", err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("topic rule did not return bool")
	}
	return b, nil
}

func ruleEnv(sufficient float64, category string) map[string]any {
	return map[string]any{
		"sufficient": sufficient,
		"category":   category,
	}
}
