package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SiteOps API",
        "description": "Facility operations: guarded state transitions, tracked changesets, approvals",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and session info"},
        {"name": "Transitions", "description": "Lock-guarded status transitions"},
        {"name": "Jobneeds", "description": "Checkpoint patches"},
        {"name": "Changesets", "description": "Tracked mutation batches"},
        {"name": "Approvals", "description": "Two-person review workflow"},
        {"name": "Audit", "description": "Transition audit trails and exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user info",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workorders/{id}/transitions": {
            "post": {
                "tags": ["Transitions"],
                "summary": "Transition a work order",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Transition not allowed"},
                    "503": {"description": "Lock not acquired"}
                }
            }
        },
        "/jobs/{id}/transitions": {
            "post": {
                "tags": ["Transitions"],
                "summary": "Transition a job",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Transition not allowed"},
                    "503": {"description": "Lock not acquired"}
                }
            }
        },
        "/jobneeds/{id}/transitions": {
            "post": {
                "tags": ["Transitions"],
                "summary": "Transition a jobneed",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.TransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "409": {"description": "Conflict"},
                    "503": {"description": "Lock contention"}
                }
            }
        },
        "/jobneeds/{id}/checkpoint": {
            "patch": {
                "tags": ["Jobneeds"],
                "summary": "Patch a jobneed checkpoint",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CheckpointUpdateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/changesets": {
            "get": {
                "tags": ["Changesets"],
                "summary": "List changesets",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "approved_by", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Changesets"],
                "summary": "Open a changeset",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateChangeSetRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/changesets/{id}": {
            "get": {
                "tags": ["Changesets"],
                "summary": "Get changeset detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/changesets/{id}/apply": {
            "post": {
                "tags": ["Changesets"],
                "summary": "Apply recommendations",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplyRecommendationsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already applied or rolled back"},
                    "412": {"description": "Approval required"}
                }
            }
        },
        "/changesets/{id}/rollback": {
            "post": {
                "tags": ["Changesets"],
                "summary": "Roll back an applied changeset",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RollbackChangeSetRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not in a rollbackable state"}
                }
            }
        },
        "/changesets/{id}/approvals": {
            "get": {
                "tags": ["Approvals"],
                "summary": "List approval slots",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Approvals"],
                "summary": "Open the approval workflow",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already opened"},
                    "412": {"description": "No eligible secondary approver"}
                }
            }
        },
        "/changesets/{id}/tickets": {
            "get": {
                "tags": ["Approvals"],
                "summary": "List escalation tickets",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/approvals/{id}/decision": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Record a decision",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApprovalDecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Assigned to a different reviewer"},
                    "409": {"description": "Already decided"}
                }
            }
        },
        "/audit/{kind}/{id}": {
            "get": {
                "tags": ["Audit"],
                "summary": "Get transition audit trail",
                "parameters": [
                    {"name": "kind", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/{kind}/{id}/export": {
            "get": {
                "tags": ["Audit"],
                "summary": "Download audit trail as CSV or PDF",
                "parameters": [
                    {"name": "kind", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "required": true, "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "400": {"description": "Unsupported format"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "TransitionRequest": {
            "type": "object",
            "properties": {
                "to_status": {"type": "string", "enum": ["ASSIGNED", "INPROGRESS", "COMPLETED", "CANCELLED"]},
                "reason": {"type": "string"},
                "comments": {"type": "string"},
                "metadata": {"type": "object"}
            },
            "required": ["to_status", "reason"]
        },
        "CheckpointUpdateRequest": {
            "type": "object",
            "properties": {
                "expiry_time": {"type": "integer"},
                "checkpoint": {"type": "string"},
                "assigned_to": {"type": "string"}
            }
        },
        "CreateChangeSetRequest": {
            "type": "object",
            "properties": {
                "description": {"type": "string"}
            },
            "required": ["description"]
        },
        "Recommendation": {
            "type": "object",
            "properties": {
                "entity_kind": {"type": "string"},
                "action": {"type": "string", "enum": ["CREATE", "UPDATE", "DELETE"]},
                "payload": {"type": "object"},
                "lookup_fields": {"type": "array", "items": {"type": "string"}},
                "update_fields": {"type": "array", "items": {"type": "string"}}
            },
            "required": ["entity_kind", "action"]
        },
        "ApplyRecommendationsRequest": {
            "type": "object",
            "properties": {
                "recommendations": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/Recommendation"}
                }
            },
            "required": ["recommendations"]
        },
        "RollbackChangeSetRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            },
            "required": ["reason"]
        },
        "ApprovalDecisionRequest": {
            "type": "object",
            "properties": {
                "decision": {"type": "string", "enum": ["APPROVED", "REJECTED", "ESCALATED"]},
                "reason": {"type": "string"},
                "conditions": {"type": "string"},
                "modifications": {"type": "string"}
            },
            "required": ["decision", "reason"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
