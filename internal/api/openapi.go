package api

import "net/http"

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(len(s.config.Tokens) > 0))
}

// buildOpenAPIDoc describes the submission routes and, when tokens are
// configured, the operator routes.
func buildOpenAPIDoc(operator bool) map[string]any {
	paths := map[string]any{
		"/api/create-page": map[string]any{
			"post": submitOperation("createPage", "Generate and publish a sector page",
				[]string{"company", "sector"},
				map[string]any{
					"company":   stringSchema("Company name"),
					"sector":    stringSchema("Sector name"),
					"slug":      stringSchema("Optional page slug"),
					"context":   stringSchema("Free-form context for the agent"),
					"links":     stringSchema("Reference URLs separated by newlines or commas"),
					"documents": fileArraySchema(),
					"dry_run":   map[string]any{"type": "boolean"},
				}),
		},
		"/api/sector-chat": map[string]any{
			"post": submitOperation("refinePage", "Refine an existing sector page",
				[]string{"slug"},
				map[string]any{
					"slug":         stringSchema("Slug of the page to edit"),
					"sector":       stringSchema("Optional sector name"),
					"instructions": stringSchema("Editing instructions"),
					"context":      stringSchema("Additional context"),
					"links":        stringSchema("Reference URLs separated by newlines or commas"),
					"documents":    fileArraySchema(),
					"dry_run":      map[string]any{"type": "boolean"},
				}),
		},
		"/healthz": map[string]any{
			"get": map[string]any{
				"operationId": "healthz",
				"responses":   map[string]any{"200": map[string]any{"description": "Service is up"}},
			},
		},
	}

	if operator {
		secured := []any{map[string]any{"BearerAuth": []string{}}}
		paths["/api/invocations"] = map[string]any{
			"get": map[string]any{
				"operationId": "listInvocations",
				"security":    secured,
				"parameters": []any{map[string]any{
					"name": "limit", "in": "query", "schema": map[string]any{"type": "integer", "minimum": 1},
				}},
				"responses": map[string]any{
					"200": map[string]any{"description": "Recent invocations, newest first"},
					"403": map[string]any{"description": "Insufficient scope"},
				},
			},
		}
		paths["/api/invocations/{id}"] = map[string]any{
			"get": map[string]any{
				"operationId": "getInvocation",
				"security":    secured,
				"responses": map[string]any{
					"200": map[string]any{"description": "Invocation record"},
					"404": map[string]any{"description": "Unknown invocation"},
				},
			},
		}
		paths["/events"] = map[string]any{
			"get": map[string]any{
				"operationId": "events",
				"security":    secured,
				"responses": map[string]any{
					"200": map[string]any{"description": "Server-sent invocation events"},
				},
			},
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "publishgw",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func submitOperation(id, summary string, required []string, props map[string]any) map[string]any {
	return map[string]any{
		"operationId": id,
		"summary":     summary,
		"requestBody": map[string]any{
			"required": true,
			"content": map[string]any{
				"multipart/form-data": map[string]any{
					"schema": map[string]any{
						"type":       "object",
						"required":   required,
						"properties": props,
					},
				},
			},
		},
		"responses": map[string]any{
			"200": map[string]any{"description": "Agent exited zero; url is null when no result line was printed"},
			"400": map[string]any{"description": "Missing required field or malformed form"},
			"413": map[string]any{"description": "Upload too large"},
			"500": map[string]any{"description": "Agent failure or internal error"},
			"503": map[string]any{"description": "Too many concurrent agent runs"},
		},
	}
}

func stringSchema(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func fileArraySchema() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string", "format": "binary"},
	}
}
