package models

import (
	"time"
)

// SnsType identifies the social platform a tag group collects handles for.
type SnsType string

const (
	SnsInstagram SnsType = "instagram"
	SnsYoutube   SnsType = "youtube"
	SnsNaver     SnsType = "naver"
	SnsOhouse    SnsType = "ohouse"
)

// Valid reports whether s is one of the supported platforms.
func (s SnsType) Valid() bool {
	switch s {
	case SnsInstagram, SnsYoutube, SnsNaver, SnsOhouse:
		return true
	}
	return false
}

// Mission is a weekly task definition in the catalog.
type Mission struct {
	ID          string    `bson:"_id" json:"id"`
	Week        int       `bson:"week" json:"week"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description" json:"description"`
	MissionURL  string    `bson:"missionUrl" json:"missionUrl"`
	IsActive    bool      `bson:"isActive" json:"isActive"`
	StartDate   time.Time `bson:"startDate" json:"startDate"`
	EndDate     time.Time `bson:"endDate" json:"endDate"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

// MissionCompletion marks that a user completed one mission. Week is a
// denormalized copy of the mission's week.
type MissionCompletion struct {
	MissionID   string    `bson:"missionId" json:"missionId"`
	Week        int       `bson:"week" json:"week"`
	CompletedAt time.Time `bson:"completedAt" json:"completedAt"`
}

// UserMissionProgress is the single per-user document holding every
// completion record of that user, keyed by mission id.
type UserMissionProgress struct {
	UserID            string                       `bson:"_id" json:"userId"`
	CompletedMissions map[string]MissionCompletion `bson:"completedMissions" json:"completedMissions"`
	TotalCompleted    int                          `bson:"totalCompleted" json:"totalCompleted"`
	LastUpdated       time.Time                    `bson:"lastUpdated" json:"lastUpdated"`
	CreatedAt         time.Time                    `bson:"createdAt" json:"createdAt"`
}

// Clone returns a deep copy of p. A nil receiver yields nil.
func (p *UserMissionProgress) Clone() *UserMissionProgress {
	if p == nil {
		return nil
	}
	c := *p
	c.CompletedMissions = make(map[string]MissionCompletion, len(p.CompletedMissions))
	for k, v := range p.CompletedMissions {
		c.CompletedMissions[k] = v
	}
	return &c
}

// MissionActivity is one entry of a user's completion history, written by
// the progress event consumer.
type MissionActivity struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"userId" json:"userId"`
	MissionID string    `bson:"missionId" json:"missionId"`
	Week      int       `bson:"week" json:"week"`
	Completed bool      `bson:"completed" json:"completed"`
	At        time.Time `bson:"at" json:"at"`
}

// SocialMedia holds a member's handle on each supported platform.
type SocialMedia struct {
	Ohouse    string `bson:"ohouse,omitempty" json:"ohouse,omitempty"`
	Instagram string `bson:"instagram,omitempty" json:"instagram,omitempty"`
	Youtube   string `bson:"youtube,omitempty" json:"youtube,omitempty"`
	Naver     string `bson:"naver,omitempty" json:"naver,omitempty"`
}

// Handle returns the handle registered for the given platform.
func (s SocialMedia) Handle(platform SnsType) string {
	switch platform {
	case SnsInstagram:
		return s.Instagram
	case SnsYoutube:
		return s.Youtube
	case SnsNaver:
		return s.Naver
	case SnsOhouse:
		return s.Ohouse
	}
	return ""
}

type PrivacyConsent struct {
	Agreed   bool      `bson:"agreed" json:"agreed"`
	AgreedAt time.Time `bson:"agreedAt" json:"agreedAt"`
	Version  string    `bson:"version" json:"version"`
	Method   string    `bson:"method" json:"method"` // "signup" or "modal"
}

// UserProfile is a member of the cohort as shown in the directory.
type UserProfile struct {
	UID               string          `bson:"_id" json:"uid"`
	DisplayName       string          `bson:"displayName" json:"displayName"`
	Email             string          `bson:"email" json:"email"`
	ProfilePhoto      string          `bson:"profilePhoto,omitempty" json:"profilePhoto,omitempty"`
	Bio               string          `bson:"bio,omitempty" json:"bio,omitempty"`
	ActivityField     string          `bson:"activityField,omitempty" json:"activityField,omitempty"`
	SocialMedia       SocialMedia     `bson:"socialMedia" json:"socialMedia"`
	PrivacyConsent    *PrivacyConsent `bson:"privacyConsent,omitempty" json:"privacyConsent,omitempty"`
	IsProfileComplete bool            `bson:"isProfileComplete" json:"isProfileComplete"`
	CreatedAt         time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// TagGroupApplication is one member's sign-up on a tag group sheet.
type TagGroupApplication struct {
	UserID          string    `bson:"userId" json:"userId"`
	UserDisplayName string    `bson:"userDisplayName" json:"userDisplayName"`
	UserInstagram   string    `bson:"userInstagram" json:"userInstagram"` // kept for older documents
	UserSnsAccount  string    `bson:"userSnsAccount" json:"userSnsAccount"`
	AppliedAt       time.Time `bson:"appliedAt" json:"appliedAt"`
}

// TagGroup is a sign-up sheet used to build a social media tag list.
type TagGroup struct {
	ID            string                `bson:"_id" json:"id"`
	Name          string                `bson:"name" json:"name"`
	Description   string                `bson:"description,omitempty" json:"description,omitempty"`
	SnsType       SnsType               `bson:"snsType" json:"snsType"`
	CreatedBy     string                `bson:"createdBy" json:"createdBy"`
	CreatedByName string                `bson:"createdByName,omitempty" json:"createdByName,omitempty"`
	IsActive      bool                  `bson:"isActive" json:"isActive"`
	CreatedAt     time.Time             `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time             `bson:"updatedAt" json:"updatedAt"`
	Applications  []TagGroupApplication `bson:"applications" json:"applications"`
}

// HasApplicant reports whether userID signed up for the group.
func (g *TagGroup) HasApplicant(userID string) bool {
	for _, app := range g.Applications {
		if app.UserID == userID {
			return true
		}
	}
	return false
}
