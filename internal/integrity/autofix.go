package integrity

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var errNoFixBound = errors.New("issue is marked auto-fixable but has no fix")

// AutoFix applies the fix of every auto-fixable issue, in order, one at a
// time. Issues without a fix are skipped and not counted. A failed fix is
// logged and counted; the batch always runs to the end.
//
// Fixes are applied blindly: the record is not re-validated first, so a fix
// computed by an earlier sweep may overwrite a newer manual edit.
func (a *Agent) AutoFix(ctx context.Context, issues []Issue) FixOutcome {
	var outcome FixOutcome

	for _, issue := range issues {
		if !issue.AutoFixable {
			continue
		}

		err := a.applyFix(ctx, issue)
		if err == nil {
			outcome.Fixed++
			a.logger.Info("fix applied",
				zap.String("issue", issue.ID),
				zap.String("kind", string(issue.Fix.Kind)),
				zap.String("record", issue.Fix.RecordID()))
			continue
		}

		rerr := &RemediationError{IssueID: issue.ID, Err: err}
		if issue.Fix != nil {
			rerr.Kind = issue.Fix.Kind
			rerr.Record = issue.Fix.RecordID()
		}
		outcome.Failed++
		outcome.Failures = append(outcome.Failures, rerr)
		a.logger.Warn("fix failed",
			zap.String("issue", issue.ID),
			zap.String("kind", string(rerr.Kind)),
			zap.String("record", rerr.Record),
			zap.Error(err))
	}

	return outcome
}

func (a *Agent) applyFix(ctx context.Context, issue Issue) error {
	if issue.Fix == nil {
		return errNoFixBound
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return issue.Fix.Apply(ctx, a.store, a.cfg.Actor)
}
