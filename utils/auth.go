package utils

import (
	"slices"

	"modbot/model"
)

// Permission levels
const (
	AdminPermission     = "admin"
	ModeratorPermission = "moderator"
	MemberPermission    = "member"
)

var permissionRank = map[string]int{
	MemberPermission:    0,
	ModeratorPermission: 1,
	AdminPermission:     2,
}

// CheckPermission returns the highest permission level granted by the member's roles.
func CheckPermission(memberRoleIDs []string, guild model.GuildSettings) string {
	for _, roleID := range memberRoleIDs {
		if slices.Contains(guild.AdminRoleIDs, roleID) {
			return AdminPermission
		}
	}
	for _, roleID := range memberRoleIDs {
		if slices.Contains(guild.ModeratorRoleIDs, roleID) {
			return ModeratorPermission
		}
	}
	return MemberPermission
}

// HasPermission reports whether level is at least required.
func HasPermission(level, required string) bool {
	return permissionRank[level] >= permissionRank[required]
}
