package quiz

// Verdict is one of the three qualitative outcomes of a finished quiz.
type Verdict string

const (
	VerdictExcellent        Verdict = "excellent"
	VerdictGood             Verdict = "good"
	VerdictNeedsImprovement Verdict = "needs_improvement"
)

// Verdict band lower bounds, in percent.
const (
	excellentThreshold = 80.0
	goodThreshold      = 50.0
)

// Classify maps a percentage to its verdict band.
func Classify(percentage float64) Verdict {
	switch {
	case percentage >= excellentThreshold:
		return VerdictExcellent
	case percentage >= goodThreshold:
		return VerdictGood
	default:
		return VerdictNeedsImprovement
	}
}

// MessageID is the i18n message shown for the verdict.
func (v Verdict) MessageID() string {
	switch v {
	case VerdictExcellent:
		return "VerdictExcellent"
	case VerdictGood:
		return "VerdictGood"
	default:
		return "VerdictNeedsImprovement"
	}
}

// Banner is the alert style used to display the verdict.
func (v Verdict) Banner() string {
	switch v {
	case VerdictExcellent:
		return "success"
	case VerdictGood:
		return "info"
	default:
		return "warning"
	}
}

// Result is the final evaluation of a completed quiz.
type Result struct {
	Score      int
	Total      int
	Percentage float64
	Verdict    Verdict
}

// NewResult computes the percentage and verdict for score out of total.
func NewResult(score, total int) Result {
	var pct float64
	if total > 0 {
		pct = 100 * float64(score) / float64(total)
	}
	return Result{
		Score:      score,
		Total:      total,
		Percentage: pct,
		Verdict:    Classify(pct),
	}
}
