package model

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// ActionType 是处罚类型的位编码，低 5 位为基础类型，高位为修饰位
type ActionType uint8

const (
	ActionWarning ActionType = iota
	ActionMute
	ActionKick
	ActionSoftBan
	ActionBan
	ActionVoiceMute
	ActionVoiceKick
	ActionRestrictedReaction
	ActionRestrictedEmbed
	ActionRestrictedAttachment
	ActionRestrictedVoice
	ActionLock
)

// ActionUndo marks a record that reverses an earlier action of the same base type.
const ActionUndo ActionType = 1 << 5

const baseMask ActionType = ActionUndo - 1

// DisplayReasonLimit is the rune limit applied when a reason is rendered.
const DisplayReasonLimit = 800

var actionNames = map[ActionType]string{
	ActionWarning:              "warning",
	ActionMute:                 "mute",
	ActionKick:                 "kick",
	ActionSoftBan:              "softban",
	ActionBan:                  "ban",
	ActionVoiceMute:            "vmute",
	ActionVoiceKick:            "vkick",
	ActionRestrictedReaction:   "restricted-reaction",
	ActionRestrictedEmbed:      "restricted-embed",
	ActionRestrictedAttachment: "restricted-attachment",
	ActionRestrictedVoice:      "restricted-voice",
	ActionLock:                 "lock",
}

// expiryKinds 记录每种可定时处罚到期时触发的任务类型
var expiryKinds = map[ActionType]string{
	ActionWarning:              "unwarn",
	ActionMute:                 "unmute",
	ActionBan:                  "unban",
	ActionVoiceMute:            "unvmute",
	ActionRestrictedReaction:   "unrestrict",
	ActionRestrictedEmbed:      "unrestrict",
	ActionRestrictedAttachment: "unrestrict",
	ActionRestrictedVoice:      "unrestrict",
	ActionLock:                 "unlock",
}

// Base strips qualifier bits.
func (t ActionType) Base() ActionType { return t & baseMask }

// IsUndo reports whether the undo qualifier is set.
func (t ActionType) IsUndo() bool { return t&ActionUndo != 0 }

// Valid reports whether the base type is part of the known enumeration.
func (t ActionType) Valid() bool {
	_, ok := actionNames[t.Base()]
	return ok && t&^(baseMask|ActionUndo) == 0
}

// Temporary reports whether the action can carry a duration.
func (t ActionType) Temporary() bool {
	_, ok := expiryKinds[t.Base()]
	return ok
}

// ExpiryKind returns the task kind that ends a temporary action, or "" for instantaneous ones.
func (t ActionType) ExpiryKind() string {
	return expiryKinds[t.Base()]
}

func (t ActionType) String() string {
	name, ok := actionNames[t.Base()]
	if !ok {
		name = fmt.Sprintf("unknown(%d)", uint8(t.Base()))
	}
	if t.IsUndo() {
		return "un" + name
	}
	return name
}

// ParseActionType maps a command option value back to its base type.
func ParseActionType(s string) (ActionType, bool) {
	for t, name := range actionNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// CaseRecord 表示一条审计用的处罚记录，除作废和申诉外不可修改
type CaseRecord struct {
	GuildID     string
	CaseID      int64
	UserID      string
	ModeratorID string
	Type        ActionType
	Reason      string
	CreatedAt   time.Time
	Duration    *time.Duration
	Invalidated bool
	AppealType  *ActionType
}

// IsType compares base types, ignoring qualifier bits.
func (c *CaseRecord) IsType(t ActionType) bool {
	return c.Type.Base() == t.Base()
}

// Appealed reports whether this record was produced by an appeal.
func (c *CaseRecord) Appealed() bool {
	return c.AppealType != nil
}

// Temporary reports whether the record carries a duration.
func (c *CaseRecord) Temporary() bool {
	return c.Duration != nil
}

// ExpiresAt returns the absolute expiry, or the zero time for permanent records.
func (c *CaseRecord) ExpiresAt() time.Time {
	if c.Duration == nil {
		return time.Time{}
	}
	return c.CreatedAt.Add(*c.Duration)
}

// RemainingTime returns CreatedAt + Duration - now. ok is false for permanent records.
func (c *CaseRecord) RemainingTime(now time.Time) (remaining time.Duration, ok bool) {
	if c.Duration == nil {
		return 0, false
	}
	return c.ExpiresAt().Sub(now), true
}

// Expired reports whether a temporary record has run out. Permanent records never expire.
func (c *CaseRecord) Expired(now time.Time) bool {
	remaining, ok := c.RemainingTime(now)
	return ok && remaining <= 0
}

// Title is the short label used in listings.
func (c *CaseRecord) Title() string {
	return c.Type.String()
}

// DisplayReason truncates the stored reason for rendering.
func (c *CaseRecord) DisplayReason() string {
	if c.Reason == "" {
		return "None"
	}
	return CutText(c.Reason, DisplayReasonLimit)
}

// CutText truncates s to at most limit runes, ending with an ellipsis when cut.
func CutText(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

// CasePatch describes the only mutation a stored case accepts.
type CasePatch struct {
	Invalidated bool
}

// CaseQuery pages through a guild's cases in ascending CaseID order.
type CaseQuery struct {
	GuildID     string
	UserID      string
	AfterCaseID int64
	Limit       int
}
