package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// PageCount returns how many pages total items fill. An empty listing still has one page.
func PageCount(total, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

// PageBounds clamps page into range and returns the slice bounds for it.
func PageBounds(page, total, perPage int) (clamped, start, end int) {
	pages := PageCount(total, perPage)
	clamped = min(max(page, 1), pages)
	start = (clamped - 1) * perPage
	end = min(start+perPage, total)
	if start > total {
		start = total
	}
	return clamped, start, end
}

// CreatePaginationComponents creates a set of pagination buttons.
// CustomIDs look like "<prefix>:<page>:<arg>...", see ParsePageCustomID.
func CreatePaginationComponents(currentPage, totalPages int, customIDPrefix string, args ...string) []discordgo.MessageComponent {
	if totalPages <= 1 {
		return nil
	}

	buttonArgs := ""
	for _, arg := range args {
		buttonArgs += ":" + arg
	}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "上一页",
					Style:    discordgo.PrimaryButton,
					Disabled: currentPage <= 1,
					CustomID: fmt.Sprintf("%s:%d%s", customIDPrefix, currentPage-1, buttonArgs),
				},
				discordgo.Button{
					Label:    fmt.Sprintf("%d / %d", currentPage, totalPages),
					Style:    discordgo.SecondaryButton,
					Disabled: true,
					CustomID: fmt.Sprintf("%s:noop", customIDPrefix),
				},
				discordgo.Button{
					Label:    "下一页",
					Style:    discordgo.PrimaryButton,
					Disabled: currentPage >= totalPages,
					CustomID: fmt.Sprintf("%s:%d%s", customIDPrefix, currentPage+1, buttonArgs),
				},
			},
		},
	}
}

// ParsePageCustomID splits a pagination CustomID back into its prefix, page and args.
func ParsePageCustomID(customID string) (prefix string, page int, args []string, err error) {
	parts := strings.Split(customID, ":")
	if len(parts) < 2 {
		return "", 0, nil, fmt.Errorf("malformed pagination id %q", customID)
	}
	page, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, nil, fmt.Errorf("malformed page in %q: %w", customID, err)
	}
	return parts[0], page, parts[2:], nil
}
