package orchestrator

import "fmt"

// State 问答流水线状态
type State string

const (
	StateRetrieving   State = "retrieving"   // 检索上下文
	StateSynthesizing State = "synthesizing" // 生成答案
	StateValidating   State = "validating"   // 校验答案
	StateFeedback     State = "feedback"     // 汇总反馈，准备再次生成
	StateDone         State = "done"         // 终态
)

// validTransitions 定义合法的状态转换
var validTransitions = map[State][]State{
	StateRetrieving:   {StateSynthesizing, StateDone}, // 检索失败直接结束
	StateSynthesizing: {StateValidating, StateDone},   // 生成失败时以降级结果结束
	StateValidating:   {StateFeedback, StateDone},
	StateFeedback:     {StateSynthesizing},
	StateDone:         {},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	From State
	To   State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}
