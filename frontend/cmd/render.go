package cmd

import (
	"fmt"
	"strings"

	"github.com/jghoshh/missioncenter/lib/mission"
	"github.com/jghoshh/missioncenter/models"
)

const dateLayout = "Jan 02"

func formatMission(m mission.MissionWithProgress) string {
	mark := " "
	if m.Completed() {
		mark = "x"
	}
	line := fmt.Sprintf("[%s] Week %d  %s", mark, m.Mission.Week, m.Mission.Title)
	if !m.Mission.StartDate.IsZero() && !m.Mission.EndDate.IsZero() {
		line += fmt.Sprintf("  (%s - %s)", m.Mission.StartDate.Format(dateLayout), m.Mission.EndDate.Format(dateLayout))
	}
	return line
}

func formatMissions(missions []mission.MissionWithProgress) string {
	if len(missions) == 0 {
		return "No active missions."
	}
	lines := make([]string, len(missions))
	for i, m := range missions {
		lines[i] = formatMission(m)
	}
	return strings.Join(lines, "\n")
}

// progressBar draws rate (0-100) as a fixed width bar.
func progressBar(rate, width int) string {
	if rate < 0 {
		rate = 0
	}
	if rate > 100 {
		rate = 100
	}
	filled := rate * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func formatSummary(s mission.ProgressSummary) string {
	return fmt.Sprintf("%s %d%%\n%d of %d missions completed, current week: %d",
		progressBar(s.CompletionRate, 20), s.CompletionRate, s.CompletedMissions, s.TotalMissions, s.CurrentWeek)
}

func formatActivity(a models.MissionActivity) string {
	verb := "completed"
	if !a.Completed {
		verb = "unchecked"
	}
	return fmt.Sprintf("%s  %s week %d", a.At.Local().Format("2006-01-02 15:04"), verb, a.Week)
}

func formatProfile(p *models.UserProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", p.DisplayName)
	if p.ActivityField != "" {
		fmt.Fprintf(&b, " (%s)", p.ActivityField)
	}
	if p.Email != "" {
		fmt.Fprintf(&b, "\n  email:     %s", p.Email)
	}
	if p.Bio != "" {
		fmt.Fprintf(&b, "\n  bio:       %s", p.Bio)
	}
	for _, platform := range []models.SnsType{models.SnsInstagram, models.SnsYoutube, models.SnsNaver, models.SnsOhouse} {
		if handle := p.SocialMedia.Handle(platform); handle != "" {
			fmt.Fprintf(&b, "\n  %-10s %s", string(platform)+":", handle)
		}
	}
	return b.String()
}

func formatTagGroup(g models.TagGroup, userID string) string {
	state := "open"
	if !g.IsActive {
		state = "closed"
	}
	line := fmt.Sprintf("%s  %s [%s, %s] %d applicant(s)", g.ID, g.Name, g.SnsType, state, len(g.Applications))
	if g.HasApplicant(userID) {
		line += " (applied)"
	}
	if g.CreatedBy == userID {
		line += " (yours)"
	}
	return line
}
