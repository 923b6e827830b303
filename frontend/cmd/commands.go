package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	ishell "github.com/abiosoft/ishell"
	"github.com/common-nighthawk/go-figure"
	"github.com/jghoshh/missioncenter/frontend/client"
	"github.com/jghoshh/missioncenter/lib/mission"
	"github.com/jghoshh/missioncenter/lib/utils"
	"github.com/jghoshh/missioncenter/models"
)

// guestCommands are available before signing in.
var guestCommands []Command

// userCommands are available only to signed in members.
var userCommands []Command

// commonCommands are always available.
var commonCommands []Command

// shell represents the interactive shell of the application.
var shell *ishell.Shell

// api is the client used by every command.
var api *client.Client

// tracker holds the member's missions between commands.
var tracker *mission.Tracker

// userID is the signed in member, empty when signed out.
var userID string

// timeout bounds each command's calls to the API.
var timeout time.Duration

// The Command struct defines a user command in the system. Each command has a Name, a Desc (short for description), and a Func (the function to execute when the command is called).
type Command struct {
	Name string                  // Name is the name of the command.
	Desc string                  // Desc is a short description of what the command does.
	Func func(c *ishell.Context) // Func is the function that is executed when the command is invoked.
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// signedIn switches the shell from the guest to the member command set and
// loads the member's missions.
func signedIn(id string) {
	userID = id
	tracker = mission.NewTracker(api, api, mission.WithTimeout(timeout))
	for _, command := range guestCommands {
		shell.DeleteCmd(command.Name)
	}
	addCommands(shell, userCommands)

	ctx, cancel := commandContext()
	defer cancel()
	if err := tracker.LoadAll(ctx, userID); err != nil {
		utils.PrintError(err.Error())
		return
	}
	if summary, ok := tracker.Summary(); ok {
		shell.Println(formatSummary(summary))
	}
}

func signedOut() {
	userID = ""
	tracker = nil
	for _, command := range userCommands {
		shell.DeleteCmd(command.Name)
	}
	addCommands(shell, guestCommands)
}

// argOrPrompt returns the first argument, or asks for it.
func argOrPrompt(c *ishell.Context, prompt string) string {
	if len(c.Args) > 0 {
		return strings.TrimSpace(c.Args[0])
	}
	c.Print(prompt)
	return strings.TrimSpace(c.ReadLine())
}

func toggleWeek(c *ishell.Context) {
	raw := argOrPrompt(c, "Week: ")
	week, err := strconv.Atoi(raw)
	if err != nil {
		utils.PrintError("week must be a number")
		return
	}

	var target *mission.MissionWithProgress
	for _, m := range tracker.Missions() {
		if m.Mission.Week == week {
			m := m
			target = &m
			break
		}
	}
	if target == nil {
		utils.PrintError(fmt.Sprintf("no active mission for week %d", week))
		return
	}

	ctx, cancel := commandContext()
	defer cancel()
	if err := tracker.Toggle(ctx, userID, target.Mission.ID, target.Mission.Week); err != nil {
		if errors.Is(err, mission.ErrToggleFailed) {
			utils.PrintError(mission.ErrToggleFailed.Error())
		} else {
			utils.PrintError(err.Error())
			return
		}
	}
	c.Println(formatMissions(tracker.Missions()))
	if summary, ok := tracker.Summary(); ok {
		c.Println(formatSummary(summary))
	}
}

func editProfile(c *ishell.Context) {
	ctx, cancel := commandContext()
	defer cancel()

	profile, err := api.Profile(ctx)
	if errors.Is(err, client.ErrNotFound) {
		profile = &models.UserProfile{}
	} else if err != nil {
		utils.PrintError(err.Error())
		return
	}

	// Each prompt keeps the current value when left empty.
	ask := func(label, current string) string {
		if current != "" {
			c.Printf("%s [%s]: ", label, current)
		} else {
			c.Printf("%s: ", label)
		}
		if v := strings.TrimSpace(c.ReadLine()); v != "" {
			return v
		}
		return current
	}

	profile.DisplayName = ask("Display name", profile.DisplayName)
	for {
		profile.Email = ask("Email", profile.Email)
		if profile.Email == "" || utils.ValidateEmail(profile.Email) {
			break
		}
		c.Println("Please enter a valid email address.")
		profile.Email = ""
	}
	profile.Bio = ask("Bio", profile.Bio)
	profile.ActivityField = ask("Activity field", profile.ActivityField)
	profile.SocialMedia.Instagram = ask("Instagram handle", profile.SocialMedia.Instagram)
	profile.SocialMedia.Youtube = ask("YouTube handle", profile.SocialMedia.Youtube)
	profile.SocialMedia.Naver = ask("Naver blog id", profile.SocialMedia.Naver)
	profile.SocialMedia.Ohouse = ask("Ohouse user id", profile.SocialMedia.Ohouse)
	profile.IsProfileComplete = profile.DisplayName != "" && profile.Email != ""

	hadConsent := profile.PrivacyConsent != nil && profile.PrivacyConsent.Agreed
	saved, err := api.SaveProfile(ctx, profile)
	if err != nil {
		utils.PrintError(err.Error())
		return
	}
	c.Println(formatProfile(saved))

	if !hadConsent {
		c.Print("Do you agree to the collection and use of your personal information? (y/n): ")
		if strings.EqualFold(strings.TrimSpace(c.ReadLine()), "y") {
			if err := api.AgreeToPrivacy(ctx, "modal"); err != nil {
				utils.PrintError(err.Error())
				return
			}
			c.Println("Thank you, your consent has been recorded.")
		}
	}
}

func newTagGroup(c *ishell.Context) {
	c.Print("Name: ")
	name := strings.TrimSpace(c.ReadLine())
	if name == "" {
		utils.PrintError("name is required")
		return
	}
	c.Print("Description: ")
	description := strings.TrimSpace(c.ReadLine())

	platforms := []models.SnsType{models.SnsInstagram, models.SnsYoutube, models.SnsNaver, models.SnsOhouse}
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = string(p)
	}
	choice := c.MultiChoice(names, "Which platform is this tag group for?")
	if choice < 0 {
		return
	}

	ctx, cancel := commandContext()
	defer cancel()
	group, err := api.CreateTagGroup(ctx, name, description, platforms[choice])
	if err != nil {
		utils.PrintError(err.Error())
		return
	}
	c.Println(formatTagGroup(*group, userID))
}

func printTagGroups(c *ishell.Context, groups []models.TagGroup) {
	if len(groups) == 0 {
		c.Println("No tag groups.")
		return
	}
	for _, g := range groups {
		c.Println(formatTagGroup(g, userID))
	}
}

// InitCmd initializes the shell and the guest, member and common command sets.
//
// It accepts two arguments:
// - c: The API client used by every command.
// - callTimeout: The deadline applied to each command's API calls.
func InitCmd(c *client.Client, callTimeout time.Duration) {
	shell = ishell.New()
	api = c
	timeout = callTimeout

	guestCommands = []Command{
		{
			Name: "signin",
			Desc: "Sign in with the access token from the portal",
			Func: func(c *ishell.Context) {
				c.Print("Paste your access token: ")
				token := c.ReadPassword()
				if strings.TrimSpace(token) == "" {
					utils.PrintError("token cannot be empty")
					return
				}
				ctx, cancel := commandContext()
				defer cancel()
				id, err := api.SignIn(ctx, token)
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Println("Welcome, you are now signed in.")
				signedIn(id)
			},
		},
	}

	userCommands = []Command{
		{
			Name: "missions",
			Desc: "List this cohort's missions and your progress",
			Func: func(c *ishell.Context) {
				c.Println(formatMissions(tracker.Missions()))
			},
		},
		{
			Name: "toggle",
			Desc: "Mark a week's mission done or not done: toggle <week>",
			Func: toggleWeek,
		},
		{
			Name: "summary",
			Desc: "Show your completion rate and the current week",
			Func: func(c *ishell.Context) {
				summary, ok := tracker.Summary()
				if !ok {
					utils.PrintError("missions are not loaded yet, try 'reload'")
					return
				}
				c.Println(formatSummary(summary))
			},
		},
		{
			Name: "reload",
			Desc: "Reload missions and progress from the server",
			Func: func(c *ishell.Context) {
				ctx, cancel := commandContext()
				defer cancel()
				if err := tracker.LoadAll(ctx, userID); err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Println(formatMissions(tracker.Missions()))
			},
		},
		{
			Name: "activity",
			Desc: "Show your recent progress changes: activity [count]",
			Func: func(c *ishell.Context) {
				limit := 10
				if len(c.Args) > 0 {
					n, err := strconv.Atoi(c.Args[0])
					if err != nil || n <= 0 {
						utils.PrintError("count must be a positive number")
						return
					}
					limit = n
				}
				ctx, cancel := commandContext()
				defer cancel()
				activity, err := api.Activity(ctx, limit)
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				if len(activity) == 0 {
					c.Println("No activity yet.")
				}
				for _, a := range activity {
					c.Println(formatActivity(a))
				}
			},
		},
		{
			Name: "profile",
			Desc: "Show your profile",
			Func: func(c *ishell.Context) {
				ctx, cancel := commandContext()
				defer cancel()
				profile, err := api.Profile(ctx)
				if errors.Is(err, client.ErrNotFound) {
					c.Println("You have no profile yet. Use 'editprofile' to create one.")
					return
				}
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Println(formatProfile(profile))
			},
		},
		{
			Name: "editprofile",
			Desc: "Create or update your profile",
			Func: editProfile,
		},
		{
			Name: "members",
			Desc: "List cohort members: members [name]",
			Func: func(c *ishell.Context) {
				ctx, cancel := commandContext()
				defer cancel()
				members, err := api.Members(ctx, strings.Join(c.Args, " "))
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				if len(members) == 0 {
					c.Println("No members found.")
				}
				for _, m := range members {
					c.Println(formatProfile(&m))
				}
			},
		},
		{
			Name: "taggroups",
			Desc: "List open tag groups: taggroups [all]",
			Func: func(c *ishell.Context) {
				all := len(c.Args) > 0 && c.Args[0] == "all"
				ctx, cancel := commandContext()
				defer cancel()
				groups, err := api.TagGroups(ctx, !all)
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				printTagGroups(c, groups)
			},
		},
		{
			Name: "mygroups",
			Desc: "List the tag groups you applied to",
			Func: func(c *ishell.Context) {
				ctx, cancel := commandContext()
				defer cancel()
				groups, err := api.MyTagGroups(ctx)
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				printTagGroups(c, groups)
			},
		},
		{
			Name: "newgroup",
			Desc: "Open a new tag group",
			Func: newTagGroup,
		},
		{
			Name: "apply",
			Desc: "Apply to a tag group: apply <id>",
			Func: func(c *ishell.Context) {
				id := argOrPrompt(c, "Tag group id: ")
				ctx, cancel := commandContext()
				defer cancel()
				group, err := api.Apply(ctx, id)
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Println(formatTagGroup(*group, userID))
			},
		},
		{
			Name: "cancel",
			Desc: "Withdraw from a tag group: cancel <id>",
			Func: func(c *ishell.Context) {
				id := argOrPrompt(c, "Tag group id: ")
				ctx, cancel := commandContext()
				defer cancel()
				if err := api.CancelApplication(ctx, id); err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Println("Your application was cancelled.")
			},
		},
		{
			Name: "close",
			Desc: "Close one of your tag groups: close <id>",
			Func: func(c *ishell.Context) {
				id := argOrPrompt(c, "Tag group id: ")
				ctx, cancel := commandContext()
				defer cancel()
				if err := api.SetTagGroupActive(ctx, id, false); err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Println("Tag group closed.")
			},
		},
		{
			Name: "tags",
			Desc: "Print a tag group's tag list: tags <id> [random]",
			Func: func(c *ishell.Context) {
				id := argOrPrompt(c, "Tag group id: ")
				random := len(c.Args) > 1 && c.Args[1] == "random"
				ctx, cancel := commandContext()
				defer cancel()
				out, err := api.Tags(ctx, id, random)
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				if out == "" {
					c.Println("No handles to tag yet.")
					return
				}
				c.Println(out)
			},
		},
		{
			Name: "signout",
			Desc: "Sign out",
			Func: func(c *ishell.Context) {
				if err := api.SignOut(); err != nil {
					utils.PrintError(err.Error())
					return
				}
				signedOut()
				c.Println("You have been signed out.")
			},
		},
	}

	commonCommands = []Command{
		{
			Name: "exit",
			Desc: "Exit the application",
			Func: func(c *ishell.Context) {
				fmt.Println("Goodbye!")
				os.Exit(0)
			},
		},
	}

	// The help command is created separately to avoid the cyclic dependency
	commonCommands = append(commonCommands, Command{
		Name: "help",
		Desc: "List available commands",
		Func: func(c *ishell.Context) {
			c.Println("Available commands:")
			commands := guestCommands
			if userID != "" {
				commands = userCommands
			}
			for _, command := range append(commands, commonCommands...) {
				c.Println("  |-- '" + command.Name + "' : " + command.Desc)
			}
			c.Println()
		},
	})
}

// addCommands is a helper function that adds the given commands to the shell.
//
// It accepts two arguments:
// - shell: The ishell shell where the commands will be added.
// - commands: A slice of Command structs to be added to the shell.
func addCommands(shell *ishell.Shell, commands []Command) {
	for _, command := range commands {
		shell.AddCmd(&ishell.Cmd{
			Name: command.Name,
			Help: command.Desc,
			Func: command.Func,
		})
	}
}

// Execute is the main function that executes the shell.
// It welcomes the user, restores a stored session when the token is still
// valid, and runs the shell.
func Execute() {
	shell.Println()
	figure.NewFigure("Mission Center", "basic", true).Print()
	shell.Println("Welcome to the cohort mission center. Type 'help' to see a list of commands.")

	addCommands(shell, commonCommands)
	addCommands(shell, guestCommands)
	if id, err := api.UserID(); err == nil {
		signedIn(id)
	}

	shell.Run()
}
