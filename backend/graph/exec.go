package graph

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/jghoshh/missioncenter/lib/mission"
	"github.com/jghoshh/missioncenter/models"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

//go:embed schema.graphqls
var sourceData string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: sourceData})

// NewExecutableSchema creates an ExecutableSchema from the ResolverRoot interface.
func NewExecutableSchema(cfg Config) graphql.ExecutableSchema {
	return &executableSchema{resolvers: cfg.Resolvers}
}

type Config struct {
	Resolvers ResolverRoot
}

type ResolverRoot interface {
	Query() QueryResolver
	Mutation() MutationResolver
}

type QueryResolver interface {
	Missions(ctx context.Context) ([]models.Mission, error)
	Mission(ctx context.Context, id string) (*models.Mission, error)
	MissionByWeek(ctx context.Context, week int) (*models.Mission, error)
	Progress(ctx context.Context) (*models.UserMissionProgress, error)
	MissionCenter(ctx context.Context) (*MissionCenter, error)
	Activity(ctx context.Context, limit *int) ([]models.MissionActivity, error)
}

type MutationResolver interface {
	SaveProgress(ctx context.Context, input ProgressInput) (*models.UserMissionProgress, error)
}

type executableSchema struct {
	resolvers ResolverRoot
}

func (e *executableSchema) Schema() *ast.Schema {
	return parsedSchema
}

func (e *executableSchema) Complexity(typeName, field string, childComplexity int, rawArgs map[string]interface{}) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	rc := graphql.GetOperationContext(ctx)
	ec := executionContext{rc, e}

	var root func(context.Context, ast.SelectionSet) graphql.Marshaler
	switch rc.Operation.Operation {
	case ast.Query:
		root = ec._Query
	case ast.Mutation:
		root = ec._Mutation
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}

	first := true
	return func(ctx context.Context) *graphql.Response {
		if !first {
			return nil
		}
		first = false
		data := root(ctx, rc.Operation.SelectionSet)
		var buf bytes.Buffer
		data.MarshalGQL(&buf)
		return &graphql.Response{Data: buf.Bytes()}
	}
}

type executionContext struct {
	*graphql.OperationContext
	*executableSchema
}

// resolveField runs one resolver with a field context, so errors carry the
// field's path. A failed resolver yields null.
func (ec *executionContext) resolveField(ctx context.Context, object string, field graphql.CollectedField, resolve func(ctx context.Context, args map[string]interface{}) (graphql.Marshaler, error)) graphql.Marshaler {
	args := field.ArgumentMap(ec.Variables)
	ctx = graphql.WithFieldContext(ctx, &graphql.FieldContext{
		Object: object,
		Field:  field,
		Args:   args,
	})
	res, err := resolve(ctx, args)
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	return res
}

// rootObject marshals the selected root fields. A null in a non-null field
// nulls the whole data object.
func rootObject(fields []graphql.CollectedField, out *graphql.FieldSet) graphql.Marshaler {
	for i, field := range fields {
		if out.Values[i] == graphql.Null && field.Definition != nil && field.Definition.Type.NonNull {
			return graphql.Null
		}
	}
	return out
}

var queryImplementors = []string{"Query"}

func (ec *executionContext) _Query(ctx context.Context, sel ast.SelectionSet) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, queryImplementors)
	q := ec.resolvers.Query()
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		field := field
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("Query")
		case "__schema", "__type":
			graphql.AddError(ctx, errors.New("introspection disabled"))
			out.Values[i] = graphql.Null
		case "missions":
			out.Values[i] = ec.resolveField(ctx, "Query", field, func(ctx context.Context, _ map[string]interface{}) (graphql.Marshaler, error) {
				res, err := q.Missions(ctx)
				if err != nil {
					return nil, err
				}
				return ec.marshalMissions(ctx, field.Selections, res), nil
			})
		case "mission":
			out.Values[i] = ec.resolveField(ctx, "Query", field, func(ctx context.Context, args map[string]interface{}) (graphql.Marshaler, error) {
				id, err := graphql.UnmarshalID(args["id"])
				if err != nil {
					return nil, err
				}
				res, err := q.Mission(ctx, id)
				if err != nil || res == nil {
					return graphql.Null, err
				}
				return ec._Mission(ctx, field.Selections, res), nil
			})
		case "missionByWeek":
			out.Values[i] = ec.resolveField(ctx, "Query", field, func(ctx context.Context, args map[string]interface{}) (graphql.Marshaler, error) {
				week, err := graphql.UnmarshalInt(args["week"])
				if err != nil {
					return nil, err
				}
				res, err := q.MissionByWeek(ctx, week)
				if err != nil || res == nil {
					return graphql.Null, err
				}
				return ec._Mission(ctx, field.Selections, res), nil
			})
		case "progress":
			out.Values[i] = ec.resolveField(ctx, "Query", field, func(ctx context.Context, _ map[string]interface{}) (graphql.Marshaler, error) {
				res, err := q.Progress(ctx)
				if err != nil || res == nil {
					return graphql.Null, err
				}
				return ec._UserMissionProgress(ctx, field.Selections, res), nil
			})
		case "missionCenter":
			out.Values[i] = ec.resolveField(ctx, "Query", field, func(ctx context.Context, _ map[string]interface{}) (graphql.Marshaler, error) {
				res, err := q.MissionCenter(ctx)
				if err != nil {
					return nil, err
				}
				return ec._MissionCenter(ctx, field.Selections, res), nil
			})
		case "activity":
			out.Values[i] = ec.resolveField(ctx, "Query", field, func(ctx context.Context, args map[string]interface{}) (graphql.Marshaler, error) {
				var limit *int
				if raw, ok := args["limit"]; ok && raw != nil {
					n, err := graphql.UnmarshalInt(raw)
					if err != nil {
						return nil, err
					}
					limit = &n
				}
				res, err := q.Activity(ctx, limit)
				if err != nil {
					return nil, err
				}
				ret := make(graphql.Array, len(res))
				for j := range res {
					ret[j] = ec._MissionActivity(ctx, field.Selections, &res[j])
				}
				return ret, nil
			})
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return rootObject(fields, out)
}

var mutationImplementors = []string{"Mutation"}

func (ec *executionContext) _Mutation(ctx context.Context, sel ast.SelectionSet) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, mutationImplementors)
	m := ec.resolvers.Mutation()
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		field := field
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("Mutation")
		case "saveProgress":
			out.Values[i] = ec.resolveField(ctx, "Mutation", field, func(ctx context.Context, args map[string]interface{}) (graphql.Marshaler, error) {
				input, err := unmarshalInputProgressInput(args["input"])
				if err != nil {
					return nil, err
				}
				res, err := m.SaveProgress(ctx, input)
				if err != nil {
					return nil, err
				}
				return ec._UserMissionProgress(ctx, field.Selections, res), nil
			})
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return rootObject(fields, out)
}

func marshalTime(t time.Time) graphql.Marshaler {
	return graphql.MarshalString(t.UTC().Format(time.RFC3339Nano))
}

func (ec *executionContext) marshalMissions(ctx context.Context, sel ast.SelectionSet, v []models.Mission) graphql.Marshaler {
	ret := make(graphql.Array, len(v))
	for i := range v {
		ret[i] = ec._Mission(ctx, sel, &v[i])
	}
	return ret
}

var missionImplementors = []string{"Mission"}

func (ec *executionContext) _Mission(ctx context.Context, sel ast.SelectionSet, obj *models.Mission) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, missionImplementors)
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("Mission")
		case "id":
			out.Values[i] = graphql.MarshalID(obj.ID)
		case "week":
			out.Values[i] = graphql.MarshalInt(obj.Week)
		case "title":
			out.Values[i] = graphql.MarshalString(obj.Title)
		case "description":
			out.Values[i] = graphql.MarshalString(obj.Description)
		case "missionUrl":
			out.Values[i] = graphql.MarshalString(obj.MissionURL)
		case "isActive":
			out.Values[i] = graphql.MarshalBoolean(obj.IsActive)
		case "startDate":
			out.Values[i] = marshalTime(obj.StartDate)
		case "endDate":
			out.Values[i] = marshalTime(obj.EndDate)
		case "createdAt":
			out.Values[i] = marshalTime(obj.CreatedAt)
		case "updatedAt":
			out.Values[i] = marshalTime(obj.UpdatedAt)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return out
}

var missionCompletionImplementors = []string{"MissionCompletion"}

func (ec *executionContext) _MissionCompletion(ctx context.Context, sel ast.SelectionSet, obj *models.MissionCompletion) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, missionCompletionImplementors)
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("MissionCompletion")
		case "missionId":
			out.Values[i] = graphql.MarshalID(obj.MissionID)
		case "week":
			out.Values[i] = graphql.MarshalInt(obj.Week)
		case "completedAt":
			out.Values[i] = marshalTime(obj.CompletedAt)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return out
}

var userMissionProgressImplementors = []string{"UserMissionProgress"}

// _UserMissionProgress lists the completion records ordered by week, then
// mission id.
func (ec *executionContext) _UserMissionProgress(ctx context.Context, sel ast.SelectionSet, obj *models.UserMissionProgress) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, userMissionProgressImplementors)
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("UserMissionProgress")
		case "userId":
			out.Values[i] = graphql.MarshalID(obj.UserID)
		case "completedMissions":
			records := make([]models.MissionCompletion, 0, len(obj.CompletedMissions))
			for _, rec := range obj.CompletedMissions {
				records = append(records, rec)
			}
			sort.Slice(records, func(a, b int) bool {
				if records[a].Week != records[b].Week {
					return records[a].Week < records[b].Week
				}
				return records[a].MissionID < records[b].MissionID
			})
			ret := make(graphql.Array, len(records))
			for j := range records {
				ret[j] = ec._MissionCompletion(ctx, field.Selections, &records[j])
			}
			out.Values[i] = ret
		case "totalCompleted":
			out.Values[i] = graphql.MarshalInt(obj.TotalCompleted)
		case "lastUpdated":
			out.Values[i] = marshalTime(obj.LastUpdated)
		case "createdAt":
			out.Values[i] = marshalTime(obj.CreatedAt)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return out
}

var progressImplementors = []string{"Progress"}

func (ec *executionContext) _Progress(ctx context.Context, sel ast.SelectionSet, obj *mission.Progress) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, progressImplementors)
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("Progress")
		case "userId":
			out.Values[i] = graphql.MarshalID(obj.UserID)
		case "missionId":
			out.Values[i] = graphql.MarshalID(obj.MissionID)
		case "week":
			out.Values[i] = graphql.MarshalInt(obj.Week)
		case "isCompleted":
			out.Values[i] = graphql.MarshalBoolean(obj.IsCompleted)
		case "completedAt":
			out.Values[i] = marshalTime(obj.CompletedAt)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return out
}

var missionWithProgressImplementors = []string{"MissionWithProgress"}

func (ec *executionContext) _MissionWithProgress(ctx context.Context, sel ast.SelectionSet, obj *mission.MissionWithProgress) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, missionWithProgressImplementors)
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("MissionWithProgress")
		case "mission":
			out.Values[i] = ec._Mission(ctx, field.Selections, &obj.Mission)
		case "progress":
			if obj.Progress == nil {
				out.Values[i] = graphql.Null
			} else {
				out.Values[i] = ec._Progress(ctx, field.Selections, obj.Progress)
			}
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return out
}

var progressSummaryImplementors = []string{"ProgressSummary"}

func (ec *executionContext) _ProgressSummary(ctx context.Context, sel ast.SelectionSet, obj *mission.ProgressSummary) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, progressSummaryImplementors)
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("ProgressSummary")
		case "totalMissions":
			out.Values[i] = graphql.MarshalInt(obj.TotalMissions)
		case "completedMissions":
			out.Values[i] = graphql.MarshalInt(obj.CompletedMissions)
		case "completionRate":
			out.Values[i] = graphql.MarshalInt(obj.CompletionRate)
		case "currentWeek":
			out.Values[i] = graphql.MarshalInt(obj.CurrentWeek)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return out
}

var missionCenterImplementors = []string{"MissionCenter"}

func (ec *executionContext) _MissionCenter(ctx context.Context, sel ast.SelectionSet, obj *MissionCenter) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, missionCenterImplementors)
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("MissionCenter")
		case "summary":
			out.Values[i] = ec._ProgressSummary(ctx, field.Selections, &obj.Summary)
		case "missions":
			ret := make(graphql.Array, len(obj.Missions))
			for j := range obj.Missions {
				ret[j] = ec._MissionWithProgress(ctx, field.Selections, &obj.Missions[j])
			}
			out.Values[i] = ret
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return out
}

var missionActivityImplementors = []string{"MissionActivity"}

func (ec *executionContext) _MissionActivity(ctx context.Context, sel ast.SelectionSet, obj *models.MissionActivity) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, missionActivityImplementors)
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("MissionActivity")
		case "id":
			out.Values[i] = graphql.MarshalID(obj.ID)
		case "userId":
			out.Values[i] = graphql.MarshalID(obj.UserID)
		case "missionId":
			out.Values[i] = graphql.MarshalID(obj.MissionID)
		case "week":
			out.Values[i] = graphql.MarshalInt(obj.Week)
		case "completed":
			out.Values[i] = graphql.MarshalBoolean(obj.Completed)
		case "at":
			out.Values[i] = marshalTime(obj.At)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return out
}

func unmarshalOptionalTime(v interface{}) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	t, err := graphql.UnmarshalTime(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func unmarshalInputMissionCompletionInput(obj interface{}) (MissionCompletionInput, error) {
	var it MissionCompletionInput
	asMap, ok := obj.(map[string]interface{})
	if !ok {
		return it, fmt.Errorf("%T is not a MissionCompletionInput", obj)
	}
	var err error
	if it.MissionID, err = graphql.UnmarshalID(asMap["missionId"]); err != nil {
		return it, err
	}
	if it.Week, err = graphql.UnmarshalInt(asMap["week"]); err != nil {
		return it, err
	}
	if it.CompletedAt, err = unmarshalOptionalTime(asMap["completedAt"]); err != nil {
		return it, err
	}
	return it, nil
}

func unmarshalInputProgressInput(obj interface{}) (ProgressInput, error) {
	var it ProgressInput
	asMap, ok := obj.(map[string]interface{})
	if !ok {
		return it, fmt.Errorf("%T is not a ProgressInput", obj)
	}

	// A single object is accepted where a list is expected.
	var items []interface{}
	switch raw := asMap["completedMissions"].(type) {
	case []interface{}:
		items = raw
	case map[string]interface{}:
		items = []interface{}{raw}
	}
	it.CompletedMissions = make([]MissionCompletionInput, 0, len(items))
	for _, item := range items {
		rec, err := unmarshalInputMissionCompletionInput(item)
		if err != nil {
			return it, err
		}
		it.CompletedMissions = append(it.CompletedMissions, rec)
	}

	var err error
	if it.LastUpdated, err = unmarshalOptionalTime(asMap["lastUpdated"]); err != nil {
		return it, err
	}
	return it, nil
}
