package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/jghoshh/missioncenter/lib/mission"
	"github.com/jghoshh/missioncenter/models"
	"github.com/zalando/go-keyring"
)

// KeyringService is the name of the service in the system keyring where the token is stored.
const KeyringService = "MissionCenter"

var (
	// ErrNotSignedIn is returned when no token is stored in the keyring.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrNotFound is returned when the API answers 404.
	ErrNotFound = errors.New("not found")
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to the mission center API on behalf of the signed-in member.
// It satisfies mission.MissionCatalog and mission.ProgressStore; those calls
// and the activity feed go through GraphQL, the rest through REST.
type Client struct {
	serverURL  string
	keyringKey string
	http       *http.Client
}

var (
	_ mission.MissionCatalog = (*Client)(nil)
	_ mission.ProgressStore  = (*Client)(nil)
)

// New returns a Client for the API at serverURL that keeps its token in the
// keyring under keyringKey.
func New(serverURL, keyringKey string) *Client {
	return &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		keyringKey: keyringKey,
		http:       &http.Client{Timeout: 30 * time.Second},
	}
}

// tokenUserID reads the id claim of a token without checking its signature;
// the API does that. Expired tokens are rejected here so the user is asked
// to sign in again instead of hitting a 401 on the next command.
func tokenUserID(tokenStr string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(tokenStr, claims); err != nil {
		return "", fmt.Errorf("malformed token: %w", err)
	}
	if !claims.VerifyExpiresAt(time.Now().Unix(), false) {
		return "", errors.New("token has expired")
	}
	userID, ok := claims["id"].(string)
	if !ok || userID == "" {
		return "", errors.New("token has no id claim")
	}
	return userID, nil
}

// Token returns the stored token, or ErrNotSignedIn.
func (c *Client) Token() (string, error) {
	token, err := keyring.Get(KeyringService, c.keyringKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotSignedIn
	}
	if err != nil {
		return "", errors.New("failed to access keyring: " + err.Error())
	}
	return token, nil
}

// UserID returns the id of the signed-in member.
func (c *Client) UserID() (string, error) {
	token, err := c.Token()
	if err != nil {
		return "", err
	}
	return tokenUserID(token)
}

// SignIn checks token against the API and stores it in the keyring.
// Returns the member's user id.
func (c *Client) SignIn(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	userID, err := tokenUserID(token)
	if err != nil {
		return "", err
	}
	if err := c.send(ctx, token, http.MethodGet, "/missions", nil, nil); err != nil {
		return "", err
	}
	if err := keyring.Set(KeyringService, c.keyringKey, token); err != nil {
		return "", errors.New("failed to store token in keyring: " + err.Error())
	}
	return userID, nil
}

// SignOut removes the stored token. Signing out twice is not an error.
func (c *Client) SignOut() error {
	err := keyring.Delete(KeyringService, c.keyringKey)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return errors.New("failed to delete token from keyring: " + err.Error())
	}
	return nil
}

// do sends an authenticated request with the stored token.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.Token()
	if err != nil {
		return err
	}
	return c.send(ctx, token, method, path, body, out)
}

// send encodes body as JSON, sends it with token and decodes a JSON answer
// into out. A string out receives the raw body.
func (c *Client) send(ctx context.Context, token, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		var payload struct {
			Error  string `json:"error"`
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			if payload.Error != "" {
				msg = payload.Error
			} else if len(payload.Errors) > 0 {
				msg = payload.Errors[0].Message
			}
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	switch dst := out.(type) {
	case nil:
		return nil
	case *string:
		*dst = string(raw)
		return nil
	default:
		return json.Unmarshal(raw, out)
	}
}

// ListActive returns the active missions ordered by week.
func (c *Client) ListActive(ctx context.Context) ([]models.Mission, error) {
	var data struct {
		Missions []models.Mission `json:"missions"`
	}
	if err := c.sendGraphQLRequest(ctx, missionsQuery, nil, &data); err != nil {
		return nil, err
	}
	return data.Missions, nil
}

// checkUser makes sure the tracker only reads and writes the signed-in
// member's own aggregate; the API always acts on the token's user.
func (c *Client) checkUser(userID string) error {
	tokenUser, err := c.UserID()
	if err != nil {
		return err
	}
	if tokenUser != userID {
		return fmt.Errorf("signed in as %s, not %s", tokenUser, userID)
	}
	return nil
}

// ReadAggregate returns the member's progress document, or nil when they have none yet.
func (c *Client) ReadAggregate(ctx context.Context, userID string) (*models.UserMissionProgress, error) {
	if err := c.checkUser(userID); err != nil {
		return nil, err
	}
	var data struct {
		Progress *graphProgress `json:"progress"`
	}
	if err := c.sendGraphQLRequest(ctx, progressQuery, nil, &data); err != nil {
		return nil, err
	}
	if data.Progress == nil {
		return nil, nil
	}
	return data.Progress.aggregate(), nil
}

// WriteAggregate replaces the member's progress document.
func (c *Client) WriteAggregate(ctx context.Context, userID string, progress *models.UserMissionProgress) error {
	if err := c.checkUser(userID); err != nil {
		return err
	}
	var data struct {
		SaveProgress struct {
			TotalCompleted int `json:"totalCompleted"`
		} `json:"saveProgress"`
	}
	vars := map[string]interface{}{"input": progressInput(progress)}
	return c.sendGraphQLRequest(ctx, saveMutation, vars, &data)
}

// Activity lists the member's latest progress changes.
func (c *Client) Activity(ctx context.Context, limit int) ([]models.MissionActivity, error) {
	var data struct {
		Activity []models.MissionActivity `json:"activity"`
	}
	vars := map[string]interface{}{"limit": limit}
	if err := c.sendGraphQLRequest(ctx, activityQuery, vars, &data); err != nil {
		return nil, err
	}
	return data.Activity, nil
}

// Profile returns the member's own profile.
func (c *Client) Profile(ctx context.Context) (*models.UserProfile, error) {
	profile := &models.UserProfile{}
	if err := c.do(ctx, http.MethodGet, "/me", nil, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// SaveProfile creates or replaces the member's profile.
func (c *Client) SaveProfile(ctx context.Context, profile *models.UserProfile) (*models.UserProfile, error) {
	saved := &models.UserProfile{}
	if err := c.do(ctx, http.MethodPut, "/me", profile, saved); err != nil {
		return nil, err
	}
	return saved, nil
}

// AgreeToPrivacy records the member's privacy consent.
func (c *Client) AgreeToPrivacy(ctx context.Context, method string) error {
	consent := models.PrivacyConsent{Agreed: true, Method: method}
	return c.do(ctx, http.MethodPost, "/me/consent", consent, nil)
}

// Members lists the directory, optionally filtered by a name fragment.
func (c *Client) Members(ctx context.Context, query string) ([]models.UserProfile, error) {
	path := "/members"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var members []models.UserProfile
	if err := c.do(ctx, http.MethodGet, path, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// TagGroups lists tag groups newest first.
func (c *Client) TagGroups(ctx context.Context, activeOnly bool) ([]models.TagGroup, error) {
	var groups []models.TagGroup
	path := "/taggroups?active=" + strconv.FormatBool(activeOnly)
	if err := c.do(ctx, http.MethodGet, path, nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// MyTagGroups lists the groups the member applied to.
func (c *Client) MyTagGroups(ctx context.Context) ([]models.TagGroup, error) {
	var groups []models.TagGroup
	if err := c.do(ctx, http.MethodGet, "/me/taggroups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// TagGroup returns one tag group.
func (c *Client) TagGroup(ctx context.Context, id string) (*models.TagGroup, error) {
	group := &models.TagGroup{}
	if err := c.do(ctx, http.MethodGet, "/taggroups/"+url.PathEscape(id), nil, group); err != nil {
		return nil, err
	}
	return group, nil
}

// CreateTagGroup opens a new tag group; the member becomes its first applicant.
func (c *Client) CreateTagGroup(ctx context.Context, name, description string, platform models.SnsType) (*models.TagGroup, error) {
	body := map[string]string{"name": name, "description": description, "snsType": string(platform)}
	group := &models.TagGroup{}
	if err := c.do(ctx, http.MethodPost, "/taggroups", body, group); err != nil {
		return nil, err
	}
	return group, nil
}

// SetTagGroupActive opens or closes a tag group the member created.
func (c *Client) SetTagGroupActive(ctx context.Context, id string, active bool) error {
	body := map[string]bool{"isActive": active}
	return c.do(ctx, http.MethodPut, "/taggroups/"+url.PathEscape(id), body, nil)
}

// Apply signs the member up for a tag group.
func (c *Client) Apply(ctx context.Context, id string) (*models.TagGroup, error) {
	group := &models.TagGroup{}
	if err := c.do(ctx, http.MethodPost, "/taggroups/"+url.PathEscape(id)+"/applications", nil, group); err != nil {
		return nil, err
	}
	return group, nil
}

// CancelApplication withdraws the member from a tag group.
func (c *Client) CancelApplication(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/taggroups/"+url.PathEscape(id)+"/applications", nil, nil)
}

// Tags returns the formatted tag list of a group, all applicants or a random sample.
func (c *Client) Tags(ctx context.Context, id string, random bool) (string, error) {
	var out string
	path := "/taggroups/" + url.PathEscape(id) + "/tags?random=" + strconv.FormatBool(random)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out, nil
}
