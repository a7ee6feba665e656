package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/engine"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/provision"
)

// TriggerMCP marks runs started through the MCP server.
const TriggerMCP = "mcp"

// EmptyParams is the input of tools that take no arguments.
type EmptyParams struct{}

// ProjectParams selects a project.
type ProjectParams struct {
	ProjectID string `json:"project_id" jsonschema:"The local project id, e.g. proj-01h..."`
}

// EntityParams selects an entity.
type EntityParams struct {
	Kind string `json:"kind" jsonschema:"work_item, idea or project"`
	ID   string `json:"id" jsonschema:"The local entity id"`
}

// SetStateParams changes an entity's status and/or priority.
type SetStateParams struct {
	Kind     string `json:"kind" jsonschema:"work_item, idea or project"`
	ID       string `json:"id" jsonschema:"The local entity id"`
	Status   string `json:"status,omitempty" jsonschema:"New status; leave empty to keep"`
	Priority string `json:"priority,omitempty" jsonschema:"New priority; leave empty to keep"`
}

// ListParams filters list_entities.
type ListParams struct {
	Kind string `json:"kind,omitempty" jsonschema:"Only list this kind; empty lists all"`
}

// AddParams describes a new local entity.
type AddParams struct {
	Kind        string `json:"kind" jsonschema:"work_item, idea or project"`
	Title       string `json:"title" jsonschema:"The entity title"`
	Description string `json:"description,omitempty" jsonschema:"Markdown description"`
	Type        string `json:"type,omitempty" jsonschema:"Item type, e.g. bug or feature"`
	Component   string `json:"component,omitempty" jsonschema:"Component name"`
	Status      string `json:"status,omitempty" jsonschema:"Initial status; defaults from the taxonomy"`
	Priority    string `json:"priority,omitempty" jsonschema:"Initial priority; defaults from the taxonomy"`
}

type tools struct {
	engine *engine.Engine
	log    zerolog.Logger
}

func newTools(e *engine.Engine, logger zerolog.Logger) *tools {
	return &tools{engine: e, log: logger.With().Str("component", "mcp").Logger()}
}

func registerTools(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "full_sync",
		Description: "Reconcile every local work item, idea and project with its GitHub issue. Local state wins on conflict.",
	}, t.HandleFullSync)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_projects",
		Description: "Create a GitHub repository for every project that does not have one yet",
	}, t.HandleSyncProjects)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_project_repository",
		Description: "Create, link and label the GitHub repository for one project",
	}, t.HandleCreateRepository)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "reseed_project_labels",
		Description: "Ensure the label taxonomy exists on a project's repository",
	}, t.HandleReseedLabels)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_entity_state",
		Description: "Change an entity's status and/or priority locally and push the labels to GitHub",
	}, t.HandleSetEntityState)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_entities",
		Description: "List local entities with their GitHub links",
	}, t.HandleListEntities)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_entity",
		Description: "Add a local work item, idea or project",
	}, t.HandleAddEntity)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "link_entity",
		Description: "Create the GitHub issue for one unlinked entity",
	}, t.HandleLinkEntity)
}

func (t *tools) HandleFullSync(ctx context.Context, req *mcp.CallToolRequest, _ EmptyParams) (*mcp.CallToolResult, any, error) {
	run, err := t.engine.FullSync(ctx, TriggerMCP)
	if err != nil {
		return t.errorResult("full_sync", err), nil, nil
	}
	return jsonResult(run, run.Result != nil && run.Result.Failed()), nil, nil
}

func (t *tools) HandleSyncProjects(ctx context.Context, req *mcp.CallToolRequest, _ EmptyParams) (*mcp.CallToolResult, any, error) {
	run, err := t.engine.SyncAllProjects(ctx, TriggerMCP)
	if err != nil {
		return t.errorResult("sync_projects", err), nil, nil
	}
	return jsonResult(run, run.Result != nil && run.Result.Failed()), nil, nil
}

func (t *tools) HandleCreateRepository(ctx context.Context, req *mcp.CallToolRequest, params ProjectParams) (*mcp.CallToolResult, any, error) {
	if params.ProjectID == "" {
		return nil, nil, fmt.Errorf("project_id parameter is required")
	}
	ref, run, err := t.engine.CreateRepository(ctx, params.ProjectID, TriggerMCP)
	var seedErr *provision.SeedError
	if err != nil && !errors.As(err, &seedErr) {
		return t.errorResult("create_project_repository", err), nil, nil
	}
	resp := map[string]any{"repository": ref, "run": run}
	if err != nil {
		resp["error"] = err.Error()
	}
	return jsonResult(resp, err != nil), nil, nil
}

func (t *tools) HandleReseedLabels(ctx context.Context, req *mcp.CallToolRequest, params ProjectParams) (*mcp.CallToolResult, any, error) {
	if params.ProjectID == "" {
		return nil, nil, fmt.Errorf("project_id parameter is required")
	}
	n, run, err := t.engine.ReseedLabels(ctx, params.ProjectID, TriggerMCP)
	if err != nil && n == 0 {
		return t.errorResult("reseed_project_labels", err), nil, nil
	}
	resp := map[string]any{"labels": n, "run": run}
	if err != nil {
		resp["error"] = err.Error()
	}
	return jsonResult(resp, err != nil), nil, nil
}

func (t *tools) HandleSetEntityState(ctx context.Context, req *mcp.CallToolRequest, params SetStateParams) (*mcp.CallToolResult, any, error) {
	kind, err := models.ParseKind(params.Kind)
	if err != nil {
		return nil, nil, err
	}
	if params.ID == "" {
		return nil, nil, fmt.Errorf("id parameter is required")
	}
	var change engine.StateChange
	if params.Status != "" {
		change.Status = &params.Status
	}
	if params.Priority != "" {
		change.Priority = &params.Priority
	}
	report, err := t.engine.SetEntityState(ctx, kind, params.ID, change)
	if err != nil {
		return t.errorResult("set_entity_state", err), nil, nil
	}
	return jsonResult(report, report.Failed > 0), nil, nil
}

func (t *tools) HandleListEntities(ctx context.Context, req *mcp.CallToolRequest, params ListParams) (*mcp.CallToolResult, any, error) {
	var kind models.Kind
	if params.Kind != "" {
		k, err := models.ParseKind(params.Kind)
		if err != nil {
			return nil, nil, err
		}
		kind = k
	}
	list, err := t.engine.ListEntities(ctx, kind)
	if err != nil {
		return t.errorResult("list_entities", err), nil, nil
	}
	if list == nil {
		list = []*models.Entity{}
	}
	return jsonResult(map[string]any{"entities": list}, false), nil, nil
}

func (t *tools) HandleAddEntity(ctx context.Context, req *mcp.CallToolRequest, params AddParams) (*mcp.CallToolResult, any, error) {
	kind, err := models.ParseKind(params.Kind)
	if err != nil {
		return nil, nil, err
	}
	ent, err := t.engine.AddEntity(ctx, &models.Entity{
		Kind:        kind,
		Title:       params.Title,
		Description: params.Description,
		Type:        params.Type,
		Component:   params.Component,
		Status:      params.Status,
		Priority:    params.Priority,
	})
	if err != nil {
		return t.errorResult("add_entity", err), nil, nil
	}
	return jsonResult(ent, false), nil, nil
}

func (t *tools) HandleLinkEntity(ctx context.Context, req *mcp.CallToolRequest, params EntityParams) (*mcp.CallToolResult, any, error) {
	kind, err := models.ParseKind(params.Kind)
	if err != nil {
		return nil, nil, err
	}
	ref, err := t.engine.LinkEntity(ctx, kind, params.ID)
	if err != nil {
		return t.errorResult("link_entity", err), nil, nil
	}
	return jsonResult(ref, false), nil, nil
}

func (t *tools) errorResult(tool string, err error) *mcp.CallToolResult {
	t.log.Warn().Err(err).Str("tool", tool).Msg("tool call failed")
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)},
		},
		IsError: true,
	}
}

func jsonResult(v any, isError bool) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: isError,
	}
}
