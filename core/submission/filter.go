package submission

import (
	"exp-orchestrator/core/grid"
	"exp-orchestrator/storage"
)

// TrainingPlan is an expanded training table classified by checkpoint
// presence. Jobs whose checkpoint already exists are never resubmitted.
type TrainingPlan struct {
	Submit           grid.Table
	CheckpointExists []string // checkpoint paths of skipped jobs
}

// PlanTraining derives identifier and checkpoint columns for every row and
// keeps only the rows whose checkpoint is absent.
func PlanTraining(table grid.Table, checkpoints *storage.CheckpointStore) TrainingPlan {
	deriveNameColumns(&table, checkpoints, nil)

	plan := TrainingPlan{}
	plan.Submit = table.Filter(func(rec grid.Record) bool {
		if checkpoints.Exists(paramsFromRecord(rec)) {
			plan.CheckpointExists = append(plan.CheckpointExists, rec[colCheckpointPath].(string))
			return false
		}
		return true
	})
	return plan
}

// GradsPlan is an expanded table classified by the two independent
// existence predicates downstream jobs depend on. A job is submittable only
// when its prerequisite checkpoint exists and its output directory does not;
// the other two classes are reported so an operator can see why each job was
// held back.
type GradsPlan struct {
	Submit            grid.Table
	MissingCheckpoint []string // checkpoint paths that do not exist yet
	OutputExists      []string // output dirs treated as already running or done
}

// PlanGrads derives identifier, checkpoint and output-dir columns and
// classifies every row. Rows lacking a checkpoint are reported as missing
// even when their output dir also exists; an existing output dir is only
// reported for rows whose checkpoint is present.
func PlanGrads(table grid.Table, checkpoints *storage.CheckpointStore, outputs *storage.OutputStore) GradsPlan {
	deriveNameColumns(&table, checkpoints, outputs)

	plan := GradsPlan{}
	plan.Submit = table.Filter(func(rec grid.Record) bool {
		p := paramsFromRecord(rec)
		if !checkpoints.Exists(p) {
			plan.MissingCheckpoint = append(plan.MissingCheckpoint, rec[colCheckpointPath].(string))
			return false
		}
		if outputs.Exists(p) {
			plan.OutputExists = append(plan.OutputExists, rec[colOutputDirectory].(string))
			return false
		}
		return true
	})
	return plan
}

// deriveNameColumns attaches the experiment identifier and path columns. The
// output-dir column is only derived when an output store is in play.
func deriveNameColumns(table *grid.Table, checkpoints *storage.CheckpointStore, outputs *storage.OutputStore) {
	table.DeriveColumn(colExperimentName, func(rec grid.Record) any {
		return paramsFromRecord(rec).Prefix()
	})
	table.DeriveColumn(colCheckpointPath, func(rec grid.Record) any {
		return checkpoints.Path(paramsFromRecord(rec))
	})
	if outputs != nil {
		table.DeriveColumn(colOutputDirectory, func(rec grid.Record) any {
			return outputs.Dir(paramsFromRecord(rec))
		})
	}
}
