package moderation

import (
	"time"

	"modbot/model"
)

// FilterKind selects which entries a moderation listing shows.
type FilterKind string

const (
	FilterMutes    FilterKind = "mutes"
	FilterWarnings FilterKind = "warnings"
	FilterWarns    FilterKind = "warns"
	FilterAll      FilterKind = "all"
)

// ParseFilterKind falls back to FilterAll for unknown input.
func ParseFilterKind(s string) FilterKind {
	switch FilterKind(s) {
	case FilterMutes, FilterWarnings, FilterWarns:
		return FilterKind(s)
	default:
		return FilterAll
	}
}

// Filter returns the entries matching kind, optionally restricted to one subject.
// It never mutates its input.
func Filter(entries []model.CaseRecord, kind FilterKind, subjectID string) []model.CaseRecord {
	out := make([]model.CaseRecord, 0, len(entries))
	for _, e := range entries {
		if e.Invalidated || e.Appealed() {
			continue
		}
		if subjectID != "" && e.UserID != subjectID {
			continue
		}
		switch kind {
		case FilterMutes:
			if !e.IsType(model.ActionMute) {
				continue
			}
		case FilterWarnings, FilterWarns:
			if !e.IsType(model.ActionWarning) {
				continue
			}
		default:
			if !e.Temporary() {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// Active reports whether an entry is still in force: not invalidated, not an appeal, not expired.
func Active(e model.CaseRecord, now time.Time) bool {
	return !e.Invalidated && !e.Appealed() && !e.Type.IsUndo() && !e.Expired(now)
}

// Governing returns the open case of type t for userID that currently decides the user's
// state: the most recently created one. Older open cases stay in the trail but do not govern.
func Governing(entries []model.CaseRecord, t model.ActionType, userID string, now time.Time) *model.CaseRecord {
	var best *model.CaseRecord
	for i := range entries {
		e := &entries[i]
		if e.UserID != userID || !e.IsType(t) || !Active(*e, now) {
			continue
		}
		if best == nil || e.CreatedAt.After(best.CreatedAt) ||
			(e.CreatedAt.Equal(best.CreatedAt) && e.CaseID > best.CaseID) {
			best = e
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}
