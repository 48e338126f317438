package decompose

import (
	"fmt"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

// Severity indicates the severity of a quality issue.
type Severity int

const (
	// SeverityInfo indicates informational feedback.
	SeverityInfo Severity = iota
	// SeverityWarning indicates a potential problem.
	SeverityWarning
	// SeverityCritical indicates a serious problem.
	SeverityCritical
)

// String returns a human-readable severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// QualityIssue is one concern with a task.
type QualityIssue struct {
	Severity   Severity
	Message    string
	Suggestion string
}

// TaskQualityScore is the score for a single task.
type TaskQualityScore struct {
	TaskID     string
	Confidence float64 // 0.0-1.0
	Issues     []QualityIssue
}

// DecompositionQuality summarises a task breakdown before it is allocated.
type DecompositionQuality struct {
	OverallConfidence float64
	TaskScores        []TaskQualityScore
	Warnings          []string
	// EstimatedParallelism is the width of the widest dependency level.
	EstimatedParallelism int
	// MaxDepth is the longest dependency chain.
	MaxDepth       int
	TotalTasks     int
	CriticalIssues int
}

// maxTasks is the size above which a breakdown is penalised as hard to coordinate.
const maxTasks = 10

// ScoreDecomposition scores tasks. Cycles do not loop; a task reached
// again on the same chain contributes no depth.
func ScoreDecomposition(tasks []models.SwarmTask) DecompositionQuality {
	quality := DecompositionQuality{
		OverallConfidence: 1.0,
		TaskScores:        make([]TaskQualityScore, len(tasks)),
		TotalTasks:        len(tasks),
	}
	if len(tasks) == 0 {
		return quality
	}

	byID := make(map[string]*models.SwarmTask, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}
	depths := make(map[string]int, len(tasks))
	for i := range tasks {
		d := depthOf(tasks[i].ID, byID, depths, make(map[string]bool))
		if d > quality.MaxDepth {
			quality.MaxDepth = d
		}
	}

	total := 0.0
	for i := range tasks {
		score := scoreTask(&tasks[i], byID, depths[tasks[i].ID])
		quality.TaskScores[i] = score
		total += score.Confidence
		for _, issue := range score.Issues {
			if issue.Severity == SeverityCritical {
				quality.CriticalIssues++
			}
		}
	}
	quality.OverallConfidence = total / float64(len(tasks))
	quality.EstimatedParallelism = parallelism(depths)
	quality.OverallConfidence = applyGlobalPenalties(quality.OverallConfidence, len(tasks), quality.EstimatedParallelism)
	quality.Warnings = generateWarnings(quality)
	return quality
}

func scoreTask(task *models.SwarmTask, byID map[string]*models.SwarmTask, depth int) TaskQualityScore {
	score := TaskQualityScore{TaskID: task.ID, Confidence: 1.0}
	add := func(sev Severity, penalty float64, msg, suggestion string) {
		score.Confidence -= penalty
		score.Issues = append(score.Issues, QualityIssue{Severity: sev, Message: msg, Suggestion: suggestion})
	}

	if len(task.RequiredRoles) == 0 {
		add(SeverityCritical, 0.4, "No required roles", "Name at least one role or capability that can do this task")
	}
	for _, dep := range task.DependsOn {
		if dep == task.ID {
			add(SeverityCritical, 0.3, "Task depends on itself", "Remove the self reference")
		} else if _, ok := byID[dep]; !ok {
			add(SeverityCritical, 0.3, "Unknown dependency: "+dep, "Depend only on tasks in the same breakdown")
		}
	}
	if len(task.AcceptanceCriteria) == 0 {
		add(SeverityWarning, 0.2, "No acceptance criteria", "Add criteria the agent can check its work against")
	}
	if task.Effort == models.EffortHigh && len(task.AcceptanceCriteria) < 2 {
		add(SeverityInfo, 0.1, "High-effort task with few acceptance criteria", "Split the task or list more criteria")
	}
	if depth > 3 {
		add(SeverityWarning, float64(depth-3)*0.1,
			fmt.Sprintf("Deep dependency chain (depth %d)", depth),
			"Flatten dependencies so more agents can work at once")
	}

	if score.Confidence < 0 {
		score.Confidence = 0
	}
	return score
}

// depthOf returns the length of the longest chain ending at id.
func depthOf(id string, byID map[string]*models.SwarmTask, memo map[string]int, onPath map[string]bool) int {
	if d, ok := memo[id]; ok {
		return d
	}
	task, ok := byID[id]
	if !ok || onPath[id] {
		return 0
	}
	onPath[id] = true
	defer delete(onPath, id)

	deepest := 0
	for _, dep := range task.DependsOn {
		if d := depthOf(dep, byID, memo, onPath); d > deepest {
			deepest = d
		}
	}
	memo[id] = deepest + 1
	return deepest + 1
}

func parallelism(depths map[string]int) int {
	width := make(map[int]int)
	widest := 0
	for _, d := range depths {
		width[d]++
		if width[d] > widest {
			widest = width[d]
		}
	}
	if widest == 0 {
		return 1
	}
	return widest
}

func applyGlobalPenalties(confidence float64, n, parallel int) float64 {
	if n > maxTasks {
		penalty := float64(n-maxTasks) * 0.05
		if penalty > 0.3 {
			penalty = 0.3
		}
		confidence -= penalty
	}
	// A strict chain leaves every agent but one idle.
	if parallel == 1 && n > 3 {
		confidence -= 0.2
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func generateWarnings(q DecompositionQuality) []string {
	var warnings []string
	if q.CriticalIssues > 0 {
		warnings = append(warnings, fmt.Sprintf("%d critical issue(s) in the task breakdown", q.CriticalIssues))
	}
	if q.TotalTasks > maxTasks {
		warnings = append(warnings, fmt.Sprintf("Large number of tasks (%d) may be difficult to coordinate", q.TotalTasks))
	}
	if q.OverallConfidence < 0.5 {
		warnings = append(warnings, "Low overall confidence, consider simplifying the description")
	}
	return warnings
}
