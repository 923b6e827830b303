package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jghoshh/missioncenter/models"
)

const (
	missionFields  = `id week title description missionUrl isActive startDate endDate createdAt updatedAt`
	progressFields = `userId completedMissions { missionId week completedAt } totalCompleted lastUpdated createdAt`
	activityFields = `id userId missionId week completed at`

	missionsQuery = `query { missions { ` + missionFields + ` } }`
	progressQuery = `query { progress { ` + progressFields + ` } }`
	activityQuery = `query Activity($limit: Int) { activity(limit: $limit) { ` + activityFields + ` } }`
	saveMutation  = `mutation SaveProgress($input: ProgressInput!) { saveProgress(input: $input) { totalCompleted } }`
)

// GraphQLError carries the messages of a GraphQL answer that reported errors.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "server returned errors: " + strings.Join(e.Messages, "; ")
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// sendGraphQLRequest posts a query or mutation to /graphql and decodes its
// data into out. Any reported error fails the whole request.
func (c *Client) sendGraphQLRequest(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	body := map[string]interface{}{"query": query}
	if len(variables) > 0 {
		body["variables"] = variables
	}

	resp := &graphQLResponse{}
	if err := c.do(ctx, http.MethodPost, "/graphql", body, resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		gqlErr := &GraphQLError{}
		for _, e := range resp.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		return gqlErr
	}
	return json.Unmarshal(resp.Data, out)
}

// graphProgress is the GraphQL shape of a progress document: the records
// come as a list instead of a map keyed by mission id.
type graphProgress struct {
	UserID            string                     `json:"userId"`
	CompletedMissions []models.MissionCompletion `json:"completedMissions"`
	TotalCompleted    int                        `json:"totalCompleted"`
	LastUpdated       time.Time                  `json:"lastUpdated"`
	CreatedAt         time.Time                  `json:"createdAt"`
}

func (p *graphProgress) aggregate() *models.UserMissionProgress {
	agg := &models.UserMissionProgress{
		UserID:            p.UserID,
		CompletedMissions: make(map[string]models.MissionCompletion, len(p.CompletedMissions)),
		TotalCompleted:    p.TotalCompleted,
		LastUpdated:       p.LastUpdated,
		CreatedAt:         p.CreatedAt,
	}
	for _, rec := range p.CompletedMissions {
		agg.CompletedMissions[rec.MissionID] = rec
	}
	return agg
}

// progressInput builds the saveProgress input, records ordered by week.
func progressInput(p *models.UserMissionProgress) map[string]interface{} {
	records := make([]models.MissionCompletion, 0, len(p.CompletedMissions))
	for id, rec := range p.CompletedMissions {
		rec.MissionID = id
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Week != records[j].Week {
			return records[i].Week < records[j].Week
		}
		return records[i].MissionID < records[j].MissionID
	})

	input := map[string]interface{}{"completedMissions": records}
	if !p.LastUpdated.IsZero() {
		input["lastUpdated"] = p.LastUpdated
	}
	return input
}
