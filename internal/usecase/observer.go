package usecase

import "time"

// Observer receives pipeline events, typically to feed metrics.
type Observer interface {
	JobFinished(status string)
	StepFinished(step, outcome string, took time.Duration)
	GenerationFinished(rounds int, degraded bool)
	ToolCalled(tool, outcome string)
}

type nopObserver struct{}

func (nopObserver) JobFinished(string)                         {}
func (nopObserver) StepFinished(string, string, time.Duration) {}
func (nopObserver) GenerationFinished(int, bool)               {}
func (nopObserver) ToolCalled(string, string)                  {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
